// +build integration

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"gridstream-data/internal/domain"

	"github.com/google/uuid"
)

func floatPtr(v float64) *float64 { return &v }

func createTestStream(t *testing.T, db *sql.DB, zone string) *domain.Stream {
	repo := NewPostgresStreamsRepository(db)
	s, err := repo.CreateStreamIfAbsent(context.Background(), domain.StreamIdentity{
		Kind:     domain.ObjectKindNode,
		ObjectID: randomObjectID(),
		SourceID: "meter/1",
	}, zone)
	if err != nil {
		t.Fatalf("Failed to create test stream: %v", err)
	}
	return s
}

func TestPostgresDatumRepository_UpsertIdempotent(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := NewPostgresDatumRepository(db, db)
	ctx := context.Background()
	stream := createTestStream(t, db, "UTC")

	ts := time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC)
	d := &domain.Datum{
		StreamID:      stream.StreamID,
		Timestamp:     ts,
		Instantaneous: []*float64{floatPtr(120.5), nil},
		Accumulating:  []*float64{floatPtr(1000)},
		Received:      time.Now().UTC(),
	}
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// 同键重写为整行覆盖，不产生第二版本
	d2 := &domain.Datum{
		StreamID:      stream.StreamID,
		Timestamp:     ts,
		Instantaneous: []*float64{floatPtr(130.0), floatPtr(2.5)},
		Accumulating:  []*float64{floatPtr(1010)},
		Received:      time.Now().UTC(),
	}
	if err := repo.Upsert(ctx, d2); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := repo.Get(ctx, stream.StreamID, ts)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Instantaneous) != 2 || got.Instantaneous[0] == nil || *got.Instantaneous[0] != 130.0 {
		t.Errorf("Expected overwritten instantaneous values, got %+v", got.Instantaneous)
	}
	if got.Instantaneous[1] == nil || *got.Instantaneous[1] != 2.5 {
		t.Errorf("Expected second slot 2.5, got %+v", got.Instantaneous[1])
	}

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM datum WHERE stream_id = $1`, stream.StreamID).Scan(&count); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 row, got %d", count)
	}

	t.Logf("✅ UpsertIdempotent test passed")
}

func TestPostgresDatumRepository_UpsertIncrementsHourlyAudit(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := NewPostgresDatumRepository(db, db)
	auditRepo := NewPostgresAuditRepository(db)
	ctx := context.Background()
	stream := createTestStream(t, db, "UTC")

	ts := time.Date(2025, 5, 1, 10, 15, 0, 0, time.UTC)
	hourStart := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d := &domain.Datum{
			StreamID:      stream.StreamID,
			Timestamp:     ts.Add(time.Duration(i) * time.Minute),
			Instantaneous: []*float64{floatPtr(float64(i))},
			Accumulating:  []*float64{floatPtr(100)},
			Received:      time.Now().UTC(),
		}
		if err := repo.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert %d failed: %v", i, err)
		}
	}

	rollup, err := auditRepo.GetRollup(ctx, stream.StreamID, domain.AggregationHour, hourStart)
	if err != nil {
		t.Fatalf("GetRollup failed: %v", err)
	}
	if rollup.DatumCount != 3 {
		t.Errorf("Expected datum_count 3, got %d", rollup.DatumCount)
	}
	if rollup.PropCount != 3 {
		t.Errorf("Expected prop_count 3, got %d", rollup.PropCount)
	}
	if rollup.PropUpdateCount != 3 {
		t.Errorf("Expected prop_u_count 3, got %d", rollup.PropUpdateCount)
	}

	t.Logf("✅ UpsertIncrementsHourlyAudit test passed: datum=%d props=%d", rollup.DatumCount, rollup.PropCount)
}

func TestPostgresDatumRepository_FindAggregateHourly(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := NewPostgresDatumRepository(db, db)
	ctx := context.Background()
	stream := createTestStream(t, db, "UTC")

	hour := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	values := []float64{10, 20, 30}
	accums := []float64{100, 150, 220}
	for i := range values {
		d := &domain.Datum{
			StreamID:      stream.StreamID,
			Timestamp:     hour.Add(time.Duration(i*15) * time.Minute),
			Instantaneous: []*float64{floatPtr(values[i])},
			Accumulating:  []*float64{floatPtr(accums[i])},
			Received:      time.Now().UTC(),
		}
		if err := repo.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	rows, err := repo.FindAggregate(ctx, domain.AggregationHour, "UTC",
		[]uuid.UUID{stream.StreamID}, hour, hour.Add(time.Hour), 0, 10)
	if err != nil {
		t.Fatalf("FindAggregate failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 aggregate row, got %d", len(rows))
	}

	row := rows[0]
	if !row.Timestamp.Equal(hour) {
		t.Errorf("Expected bucket start %s, got %s", hour, row.Timestamp)
	}
	if len(row.Instantaneous) != 1 || row.Instantaneous[0] == nil || *row.Instantaneous[0] != 20 {
		t.Errorf("Expected average 20, got %+v", row.Instantaneous)
	}
	if len(row.Minimum) != 1 || *row.Minimum[0] != 10 {
		t.Errorf("Expected minimum 10, got %+v", row.Minimum)
	}
	if len(row.Maximum) != 1 || *row.Maximum[0] != 30 {
		t.Errorf("Expected maximum 30, got %+v", row.Maximum)
	}
	// accumulating 为桶内增量 max-min
	if len(row.Accumulating) != 1 || *row.Accumulating[0] != 120 {
		t.Errorf("Expected accumulating delta 120, got %+v", row.Accumulating)
	}

	t.Logf("✅ FindAggregateHourly test passed")
}

func TestPostgresDatumRepository_FindAggregateLocalDayBoundary(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := NewPostgresDatumRepository(db, db)
	ctx := context.Background()
	stream := createTestStream(t, db, "Asia/Tokyo")

	// 东京 5/2 00:30 = UTC 5/1 15:30；按东京日界应落入 5/2 的天桶
	tsUTC := time.Date(2025, 5, 1, 15, 30, 0, 0, time.UTC)
	d := &domain.Datum{
		StreamID:      stream.StreamID,
		Timestamp:     tsUTC,
		Instantaneous: []*float64{floatPtr(50)},
		Received:      time.Now().UTC(),
	}
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	loc, _ := time.LoadLocation("Asia/Tokyo")
	dayStart := time.Date(2025, 5, 2, 0, 0, 0, 0, loc)

	rows, err := repo.FindAggregate(ctx, domain.AggregationDay, "Asia/Tokyo",
		[]uuid.UUID{stream.StreamID}, dayStart, dayStart.AddDate(0, 0, 1), 0, 10)
	if err != nil {
		t.Fatalf("FindAggregate failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected datum in Tokyo 5/2 day bucket, got %d rows", len(rows))
	}

	t.Logf("✅ FindAggregateLocalDayBoundary test passed: bucket=%s", rows[0].Timestamp)
}

func TestPostgresDatumRepository_BulkLoad(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := NewPostgresDatumRepository(db, db)
	ctx := context.Background()
	stream := createTestStream(t, db, "UTC")

	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	ch := make(chan *domain.Datum, 8)
	go func() {
		for i := 0; i < 100; i++ {
			ch <- &domain.Datum{
				StreamID:      stream.StreamID,
				Timestamp:     base.Add(time.Duration(i) * time.Minute),
				Instantaneous: []*float64{floatPtr(float64(i))},
				Received:      time.Now().UTC(),
			}
		}
		close(ch)
	}()

	n, err := repo.BulkLoad(ctx, ch)
	if err != nil {
		t.Fatalf("BulkLoad failed: %v", err)
	}
	if n != 100 {
		t.Errorf("Expected 100 rows loaded, got %d", n)
	}

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM datum WHERE stream_id = $1`, stream.StreamID).Scan(&count); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 100 {
		t.Errorf("Expected 100 rows in table, got %d", count)
	}

	t.Logf("✅ BulkLoad test passed: loaded=%d", n)
}

func TestPostgresDatumRepository_AuxiliaryStoreAndMove(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := NewPostgresDatumRepository(db, db)
	ctx := context.Background()
	stream := createTestStream(t, db, "UTC")

	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	final, _ := json.Marshal(map[string]float64{"wattHours": 5000})
	start, _ := json.Marshal(map[string]float64{"wattHours": 0})

	aux := &domain.DatumAuxiliary{
		StreamID:  stream.StreamID,
		Timestamp: ts,
		Type:      domain.AuxiliaryReset,
		Updated:   time.Now().UTC(),
		Notes:     "meter swap",
		Final:     final,
		Start:     start,
	}
	if err := repo.StoreAuxiliary(ctx, aux); err != nil {
		t.Fatalf("StoreAuxiliary failed: %v", err)
	}

	// 迁移到新的时间戳：原键删除，新键写入，同一事务
	newTs := ts.Add(time.Hour)
	moved := *aux
	moved.Timestamp = newTs
	ok, err := repo.MoveAuxiliary(ctx, domain.AuxiliaryKey{
		StreamID: stream.StreamID, Timestamp: ts, Type: domain.AuxiliaryReset,
	}, &moved)
	if err != nil {
		t.Fatalf("MoveAuxiliary failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected move to report success")
	}

	// 源记录不存在时返回 false
	ok, err = repo.MoveAuxiliary(ctx, domain.AuxiliaryKey{
		StreamID: stream.StreamID, Timestamp: ts, Type: domain.AuxiliaryReset,
	}, &moved)
	if err != nil {
		t.Fatalf("Second MoveAuxiliary failed: %v", err)
	}
	if ok {
		t.Error("Expected move of missing source to report false")
	}

	t.Logf("✅ AuxiliaryStoreAndMove test passed")
}

func TestPostgresDatumRepository_ReportableIntervalAndSources(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := NewPostgresDatumRepository(db, db)
	ctx := context.Background()
	stream := createTestStream(t, db, "UTC")

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{last, first} {
		if err := repo.Upsert(ctx, &domain.Datum{
			StreamID:      stream.StreamID,
			Timestamp:     ts,
			Instantaneous: []*float64{floatPtr(1)},
			Received:      time.Now().UTC(),
		}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	start, end, err := repo.ReportableInterval(ctx, []uuid.UUID{stream.StreamID})
	if err != nil {
		t.Fatalf("ReportableInterval failed: %v", err)
	}
	if start == nil || !start.Equal(first) {
		t.Errorf("Expected interval start %s, got %v", first, start)
	}
	if end == nil || !end.Equal(last) {
		t.Errorf("Expected interval end %s, got %v", last, end)
	}

	sources, err := repo.AvailableSources(ctx, stream.Kind, stream.ObjectID, nil, nil)
	if err != nil {
		t.Fatalf("AvailableSources failed: %v", err)
	}
	if len(sources) != 1 || sources[0] != stream.SourceID {
		t.Errorf("Expected sources [%s], got %v", stream.SourceID, sources)
	}

	t.Logf("✅ ReportableIntervalAndSources test passed")
}
