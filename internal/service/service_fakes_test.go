package service

import (
	"context"
	"sync"
	"time"

	"gridstream-data/internal/domain"
	"gridstream-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// fakeStreamsRepo 内存流Repository，模拟存储层的 insert-or-fetch 语义
type fakeStreamsRepo struct {
	mu      sync.Mutex
	streams map[domain.StreamIdentity]*domain.Stream

	createCalls int
	findCalls   int
	appendCalls int
	listErr     error
}

func newFakeStreamsRepo() *fakeStreamsRepo {
	return &fakeStreamsRepo{streams: make(map[domain.StreamIdentity]*domain.Stream)}
}

func (f *fakeStreamsRepo) GetStream(ctx context.Context, streamID uuid.UUID) (*domain.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.streams {
		if s.StreamID == streamID {
			return s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStreamsRepo) FindStreamByIdentity(ctx context.Context, identity domain.StreamIdentity) (*domain.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if s, ok := f.streams[identity]; ok {
		return s, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStreamsRepo) CreateStreamIfAbsent(ctx context.Context, identity domain.StreamIdentity, timeZone string) (*domain.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if s, ok := f.streams[identity]; ok {
		// 唯一约束竞态的胜者
		return s, nil
	}
	s := &domain.Stream{
		StreamID:  uuid.New(),
		Kind:      identity.Kind,
		ObjectID:  identity.ObjectID,
		SourceID:  identity.SourceID,
		TimeZone:  timeZone,
		CreatedAt: time.Now().UTC(),
	}
	f.streams[identity] = s
	return s, nil
}

func (f *fakeStreamsRepo) AppendStreamNames(ctx context.Context, streamID uuid.UUID, namesI, namesA, namesS []string) (*domain.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	for _, s := range f.streams {
		if s.StreamID == streamID {
			s.NamesInstantaneous = appendMissing(s.NamesInstantaneous, namesI)
			s.NamesAccumulating = appendMissing(s.NamesAccumulating, namesA)
			s.NamesStatus = appendMissing(s.NamesStatus, namesS)
			return s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func appendMissing(existing, add []string) []string {
	for _, n := range add {
		seen := false
		for _, e := range existing {
			if e == n {
				seen = true
				break
			}
		}
		if !seen {
			existing = append(existing, n)
		}
	}
	return existing
}

func (f *fakeStreamsRepo) ListStreams(ctx context.Context, kind domain.ObjectKind, objectIDs []int64, sourceIDs []string) ([]*domain.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*domain.Stream
	for _, s := range f.streams {
		if s.Kind != kind {
			continue
		}
		if len(objectIDs) > 0 && !containsInt64(objectIDs, s.ObjectID) {
			continue
		}
		if len(sourceIDs) > 0 && !containsString(sourceIDs, s.SourceID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStreamsRepo) add(s *domain.Stream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[s.Identity()] = s
}

// fakeDatumRepo 内存 datum Repository；聚合查询返回预置结果
type fakeDatumRepo struct {
	mu    sync.Mutex
	datum map[uuid.UUID][]*domain.Datum

	aggregateResults map[string][]*domain.AggregateDatum
	aggregateCalls   []fakeAggregateCall
	upsertErrs       []error
	upsertCalls      int
}

type fakeAggregateCall struct {
	agg    domain.Aggregation
	zone   string
	start  time.Time
	end    time.Time
	limit  int
	offset int
}

func newFakeDatumRepo() *fakeDatumRepo {
	return &fakeDatumRepo{
		datum:            make(map[uuid.UUID][]*domain.Datum),
		aggregateResults: make(map[string][]*domain.AggregateDatum),
	}
}

func (f *fakeDatumRepo) Upsert(ctx context.Context, d *domain.Datum) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		if err != nil {
			return err
		}
	}
	f.datum[d.StreamID] = append(f.datum[d.StreamID], d)
	return nil
}

func (f *fakeDatumRepo) Get(ctx context.Context, streamID uuid.UUID, ts time.Time) (*domain.Datum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.datum[streamID] {
		if d.Timestamp.Equal(ts) {
			return d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDatumRepo) FindFiltered(ctx context.Context, streamIDs []uuid.UUID, start, end *time.Time, sorts []domain.SortDescriptor, offset, limit int) ([]*domain.Datum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Datum
	for _, id := range streamIDs {
		for _, d := range f.datum[id] {
			if start != nil && d.Timestamp.Before(*start) {
				continue
			}
			if end != nil && !d.Timestamp.Before(*end) {
				continue
			}
			out = append(out, d)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDatumRepo) FindMostRecent(ctx context.Context, streamIDs []uuid.UUID) ([]*domain.Datum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Datum
	for _, id := range streamIDs {
		var latest *domain.Datum
		for _, d := range f.datum[id] {
			if latest == nil || d.Timestamp.After(latest.Timestamp) {
				latest = d
			}
		}
		if latest != nil {
			out = append(out, latest)
		}
	}
	return out, nil
}

func (f *fakeDatumRepo) FindAggregate(ctx context.Context, agg domain.Aggregation, zone string, streamIDs []uuid.UUID, start, end time.Time, offset, limit int) ([]*domain.AggregateDatum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggregateCalls = append(f.aggregateCalls, fakeAggregateCall{
		agg: agg, zone: zone, start: start, end: end, offset: offset, limit: limit,
	})
	return f.aggregateResults[zone], nil
}

func (f *fakeDatumRepo) ReportableInterval(ctx context.Context, streamIDs []uuid.UUID) (*time.Time, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var min, max *time.Time
	for _, id := range streamIDs {
		for _, d := range f.datum[id] {
			ts := d.Timestamp
			if min == nil || ts.Before(*min) {
				v := ts
				min = &v
			}
			if max == nil || ts.After(*max) {
				v := ts
				max = &v
			}
		}
	}
	return min, max, nil
}

func (f *fakeDatumRepo) AvailableSources(ctx context.Context, kind domain.ObjectKind, objectID int64, start, end *time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeDatumRepo) StoreAuxiliary(ctx context.Context, aux *domain.DatumAuxiliary) error {
	return nil
}

func (f *fakeDatumRepo) MoveAuxiliary(ctx context.Context, from domain.AuxiliaryKey, to *domain.DatumAuxiliary) (bool, error) {
	return false, nil
}

func (f *fakeDatumRepo) BulkLoad(ctx context.Context, datum <-chan *domain.Datum) (int64, error) {
	var n int64
	for d := range datum {
		if err := f.Upsert(ctx, d); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// fakeAuditRepo 内存审计Repository；可注入刷新错误模拟存储故障
type fakeAuditRepo struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
	calls  int

	failNext  int
	dayCalls  []time.Time
	monCalls  []time.Time
	rollupErr error
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{counts: make(map[uuid.UUID]int64)}
}

func (f *fakeAuditRepo) AddQueryCounts(ctx context.Context, hourStart time.Time, counts map[uuid.UUID]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return repository.ErrNotFound
	}
	for id, n := range counts {
		f.counts[id] += n
	}
	return nil
}

func (f *fakeAuditRepo) MaterializeDay(ctx context.Context, day time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dayCalls = append(f.dayCalls, day)
	return 1, f.rollupErr
}

func (f *fakeAuditRepo) MaterializeMonth(ctx context.Context, month time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monCalls = append(f.monCalls, month)
	return 1, f.rollupErr
}

func (f *fakeAuditRepo) GetRollup(ctx context.Context, streamID uuid.UUID, agg domain.Aggregation, periodStart time.Time) (*domain.AuditRollup, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeAuditRepo) total() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, n := range f.counts {
		sum += n
	}
	return sum
}

func containsInt64(xs []int64, v int64) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

var (
	_ repository.StreamsRepository = (*fakeStreamsRepo)(nil)
	_ repository.DatumRepository   = (*fakeDatumRepo)(nil)
	_ repository.AuditRepository   = (*fakeAuditRepo)(nil)
)
