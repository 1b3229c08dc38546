package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gridstream-data/internal/domain"
	"gridstream-data/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKV 内存 KV，支撑最新值缓存路径
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", store.ErrMiss
}

func (f *fakeKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

type queryFixture struct {
	streams *fakeStreamsRepo
	datum   *fakeDatumRepo
	audit   *fakeAuditRepo
	auditor *QueryAuditor
	latest  *store.LatestDatumStore
	svc     *QueryService
}

func newQueryFixture(t *testing.T, limit int) *queryFixture {
	streams := newFakeStreamsRepo()
	datum := newFakeDatumRepo()
	audit := newFakeAuditRepo()
	auditor := NewQueryAuditor(audit, QueryAuditorConfig{}, testLogger())
	latest := store.NewLatestDatumStore(newFakeKV(), time.Hour)

	enforcer, err := NewAggregationEnforcer(DefaultEnforcerConfig())
	require.NoError(t, err)

	svc := NewQueryService(streams, datum, latest, enforcer, auditor,
		QueryServiceConfig{FilteredResultsLimit: limit}, testLogger())
	return &queryFixture{
		streams: streams,
		datum:   datum,
		audit:   audit,
		auditor: auditor,
		latest:  latest,
		svc:     svc,
	}
}

func (fx *queryFixture) addStream(objectID int64, sourceID, zone string) *domain.Stream {
	s := &domain.Stream{
		StreamID: uuid.New(),
		Kind:     domain.ObjectKindNode,
		ObjectID: objectID,
		SourceID: sourceID,
		TimeZone: zone,
	}
	fx.streams.add(s)
	return s
}

func TestQueryService_ClampsPagination(t *testing.T) {
	fx := newQueryFixture(t, 1000)
	s := fx.addStream(1, "meter/1", "UTC")

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		fx.datum.datum[s.StreamID] = append(fx.datum.datum[s.StreamID], &domain.Datum{
			StreamID:  s.StreamID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}}

	// 负 offset 归零，超大 max 收窄到上限
	got, err := fx.svc.FindFilteredRaw(context.Background(), c, nil, -5, 999999)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = fx.svc.FindFilteredRaw(context.Background(), c, nil, 2, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQueryService_InvalidCriteriaRejected(t *testing.T) {
	fx := newQueryFixture(t, 1000)

	start := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}, StartDate: &start, EndDate: &end}

	_, err := fx.svc.FindFilteredRaw(context.Background(), c, nil, 0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidCriteria)

	// 聚合查询必须带对象标识
	_, _, err = fx.svc.FindFilteredAggregate(context.Background(), &domain.DatumCriteria{
		Kind:        domain.ObjectKindNode,
		Aggregation: domain.AggregationDay,
	}, nil, 0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidCriteria)

	// 最新值查询与聚合条件互斥
	_, _, err = fx.svc.FindFilteredAggregate(context.Background(), &domain.DatumCriteria{
		Kind:        domain.ObjectKindNode,
		ObjectIDs:   []int64{1},
		Aggregation: domain.AggregationDay,
		MostRecent:  true,
	}, nil, 0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidCriteria)
}

func TestQueryService_AuditsEveryInvolvedStream(t *testing.T) {
	fx := newQueryFixture(t, 1000)
	fx.addStream(1, "meter/1", "UTC")
	fx.addStream(1, "meter/2", "UTC")

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}}
	_, err := fx.svc.FindFilteredRaw(context.Background(), c, nil, 0, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(2), fx.auditor.PendingCount())
}

func TestQueryService_MostRecentServedFromLatestStore(t *testing.T) {
	fx := newQueryFixture(t, 1000)
	cached := fx.addStream(1, "meter/1", "UTC")
	uncached := fx.addStream(1, "meter/2", "UTC")

	ctx := context.Background()
	cachedDatum := &domain.Datum{
		StreamID:  cached.StreamID,
		Timestamp: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, fx.latest.Put(ctx, cachedDatum))

	storedDatum := &domain.Datum{
		StreamID:  uncached.StreamID,
		Timestamp: time.Date(2025, 5, 1, 11, 0, 0, 0, time.UTC),
	}
	fx.datum.datum[uncached.StreamID] = []*domain.Datum{storedDatum}

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}, MostRecent: true}
	got, err := fx.svc.FindFilteredRaw(ctx, c, nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byStream := map[uuid.UUID]time.Time{}
	for _, d := range got {
		byStream[d.StreamID] = d.Timestamp
	}
	assert.True(t, byStream[cached.StreamID].Equal(cachedDatum.Timestamp))
	assert.True(t, byStream[uncached.StreamID].Equal(storedDatum.Timestamp))
}

func TestQueryService_AggregateDefaultsAndEnforcement(t *testing.T) {
	fx := newQueryFixture(t, 1000)
	fx.addStream(1, "meter/1", "UTC")

	// 宽范围的 Minute 请求被强制为 Day
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	c := &domain.DatumCriteria{
		Kind:        domain.ObjectKindNode,
		ObjectIDs:   []int64{1},
		StartDate:   &start,
		EndDate:     &end,
		Aggregation: domain.AggregationMinute,
	}

	_, effective, err := fx.svc.FindFilteredAggregate(context.Background(), c, nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.AggregationDay, effective)

	require.Len(t, fx.datum.aggregateCalls, 1)
	assert.Equal(t, domain.AggregationDay, fx.datum.aggregateCalls[0].agg)
}

func TestQueryService_AggregatePartitionsByZone(t *testing.T) {
	fx := newQueryFixture(t, 1000)
	tokyo := fx.addStream(1, "meter/1", "Asia/Tokyo")
	denver := fx.addStream(1, "meter/2", "America/Denver")

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	fx.datum.aggregateResults["Asia/Tokyo"] = []*domain.AggregateDatum{
		{StreamID: tokyo.StreamID, Timestamp: base.Add(2 * time.Hour), Aggregation: domain.AggregationDay},
	}
	fx.datum.aggregateResults["America/Denver"] = []*domain.AggregateDatum{
		{StreamID: denver.StreamID, Timestamp: base.Add(time.Hour), Aggregation: domain.AggregationDay},
	}

	start := base
	end := base.AddDate(0, 0, 10)
	c := &domain.DatumCriteria{
		Kind:        domain.ObjectKindNode,
		ObjectIDs:   []int64{1},
		StartDate:   &start,
		EndDate:     &end,
		Aggregation: domain.AggregationDay,
	}

	got, effective, err := fx.svc.FindFilteredAggregate(context.Background(), c, nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.AggregationDay, effective)

	// 两个时区各执行一次，结果按时间合并排序
	assert.Len(t, fx.datum.aggregateCalls, 2)
	require.Len(t, got, 2)
	assert.Equal(t, denver.StreamID, got[0].StreamID)
	assert.Equal(t, tokyo.StreamID, got[1].StreamID)

	// 时间降序排序描述反转合并顺序
	got, _, err = fx.svc.FindFilteredAggregate(context.Background(), c,
		[]domain.SortDescriptor{{Key: "time", Descending: true}}, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tokyo.StreamID, got[0].StreamID)
	assert.Equal(t, denver.StreamID, got[1].StreamID)
}

func TestQueryService_AvailableSourcesAudited(t *testing.T) {
	fx := newQueryFixture(t, 1000)
	fx.addStream(1, "meter/1", "UTC")
	fx.addStream(1, "meter/2", "UTC")

	_, err := fx.svc.AvailableSources(context.Background(), domain.ObjectKindNode, 1, nil, nil)
	require.NoError(t, err)

	// 可用 source 查询与其它读路径一样计入查询审计
	assert.Equal(t, int64(2), fx.auditor.PendingCount())
}

func TestQueryService_ReportableInterval(t *testing.T) {
	fx := newQueryFixture(t, 1000)
	s := fx.addStream(1, "meter/1", "UTC")

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	fx.datum.datum[s.StreamID] = []*domain.Datum{
		{StreamID: s.StreamID, Timestamp: last},
		{StreamID: s.StreamID, Timestamp: first},
	}

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}}
	start, end, err := fx.svc.ReportableInterval(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.True(t, start.Equal(first))
	assert.True(t, end.Equal(last))

	// 无数据时两端为 nil
	empty := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{999}}
	start, end, err = fx.svc.ReportableInterval(context.Background(), empty)
	require.NoError(t, err)
	assert.Nil(t, start)
	assert.Nil(t, end)
}
