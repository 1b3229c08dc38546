package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gridstream-data/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresDatumRepository 时序 datum Repository实现
// db 为交互事务连接池；bulkDB 为批量导入专用连接池（可与 db 相同，但生产环境应分开）
type PostgresDatumRepository struct {
	db     *sql.DB
	bulkDB *sql.DB
}

// NewPostgresDatumRepository 创建 datum Repository
func NewPostgresDatumRepository(db, bulkDB *sql.DB) *PostgresDatumRepository {
	if bulkDB == nil {
		bulkDB = db
	}
	return &PostgresDatumRepository{db: db, bulkDB: bulkDB}
}

// 确保实现了接口
var _ DatumRepository = (*PostgresDatumRepository)(nil)

// 列顺序契约（scanDatum 按此顺序读取）：
// stream_id, ts, data_i, data_a, data_s, data_t, received
const datumColumns = `d.stream_id, d.ts, d.data_i, d.data_a, d.data_s, d.data_t, d.received`

// --- 值数组转换 ---

func floatsToNull(vals []*float64) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, len(vals))
	for i, v := range vals {
		if v != nil {
			out[i] = sql.NullFloat64{Float64: *v, Valid: true}
		}
	}
	return out
}

func nullToFloats(vals []sql.NullFloat64) []*float64 {
	if vals == nil {
		return nil
	}
	out := make([]*float64, len(vals))
	for i, v := range vals {
		if v.Valid {
			f := v.Float64
			out[i] = &f
		}
	}
	return out
}

func stringsToNull(vals []*string) []sql.NullString {
	out := make([]sql.NullString, len(vals))
	for i, v := range vals {
		if v != nil {
			out[i] = sql.NullString{String: *v, Valid: true}
		}
	}
	return out
}

func nullToStrings(vals []sql.NullString) []*string {
	if vals == nil {
		return nil
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		if v.Valid {
			s := v.String
			out[i] = &s
		}
	}
	return out
}

// scanDatum 扫描单条 datum 记录
func scanDatum(row streamRowScanner) (*domain.Datum, error) {
	var d domain.Datum
	var dataI, dataA []sql.NullFloat64
	var dataS []sql.NullString
	var dataT pq.StringArray

	err := row.Scan(
		&d.StreamID,
		&d.Timestamp,
		pq.Array(&dataI),
		pq.Array(&dataA),
		pq.Array(&dataS),
		&dataT,
		&d.Received,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan datum: %w", err)
	}

	d.Instantaneous = nullToFloats(dataI)
	d.Accumulating = nullToFloats(dataA)
	d.Status = nullToStrings(dataS)
	d.Tags = dataT
	return &d, nil
}

// Upsert 幂等写入 datum 并在同一事务内累加小时审计计数
// 后写覆盖整行；审计为近似计数，覆盖写同样按一次接收计入
func (r *PostgresDatumRepository) Upsert(ctx context.Context, d *domain.Datum) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datum (stream_id, ts, data_i, data_a, data_s, data_t, received)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (stream_id, ts) DO UPDATE SET
			data_i = EXCLUDED.data_i,
			data_a = EXCLUDED.data_a,
			data_s = EXCLUDED.data_s,
			data_t = EXCLUDED.data_t,
			received = now()`,
		d.StreamID, d.Timestamp,
		pq.Array(floatsToNull(d.Instantaneous)),
		pq.Array(floatsToNull(d.Accumulating)),
		pq.Array(stringsToNull(d.Status)),
		pq.Array(d.Tags),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert datum: %w", err)
	}

	inst, accu := d.PropertyCounts()
	hourStart := d.Timestamp.UTC().Truncate(time.Hour)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO aud_datm_hourly (stream_id, ts_start, datum_count, prop_count, prop_u_count)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (stream_id, ts_start) DO UPDATE SET
			datum_count = aud_datm_hourly.datum_count + 1,
			prop_count = aud_datm_hourly.prop_count + EXCLUDED.prop_count,
			prop_u_count = aud_datm_hourly.prop_u_count + EXCLUDED.prop_u_count`,
		d.StreamID, hourStart, inst, accu,
	)
	if err != nil {
		return fmt.Errorf("failed to increment hourly audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit datum upsert: %w", err)
	}
	return nil
}

// Get 按复合键读取单条 datum
func (r *PostgresDatumRepository) Get(ctx context.Context, streamID uuid.UUID, ts time.Time) (*domain.Datum, error) {
	query := `SELECT ` + datumColumns + ` FROM datum d WHERE d.stream_id = $1 AND d.ts = $2`
	return scanDatum(r.db.QueryRowContext(ctx, query, streamID, ts))
}

// orderByClause 构建排序子句（仅允许受控键，默认按时间升序）
func orderByClause(sorts []domain.SortDescriptor) string {
	if len(sorts) == 0 {
		return " ORDER BY d.ts, d.stream_id"
	}
	var parts []string
	for _, s := range sorts {
		var col string
		switch s.Key {
		case "time":
			col = "d.ts"
		case "stream":
			col = "d.stream_id"
		default:
			continue
		}
		if s.Descending {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	if len(parts) == 0 {
		return " ORDER BY d.ts, d.stream_id"
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// FindFiltered 按流集合 + 时间范围分页查询原始 datum
func (r *PostgresDatumRepository) FindFiltered(ctx context.Context, streamIDs []uuid.UUID, start, end *time.Time, sorts []domain.SortDescriptor, offset, limit int) ([]*domain.Datum, error) {
	if len(streamIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + datumColumns + ` FROM datum d WHERE d.stream_id = ANY($1)`
	args := []interface{}{pq.Array(uuidStrings(streamIDs))}
	argN := 2

	if start != nil {
		query += fmt.Sprintf(" AND d.ts >= $%d", argN)
		args = append(args, *start)
		argN++
	}
	if end != nil {
		query += fmt.Sprintf(" AND d.ts < $%d", argN)
		args = append(args, *end)
		argN++
	}

	query += orderByClause(sorts)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query datum: %w", err)
	}
	defer rows.Close()

	var results []*domain.Datum
	for rows.Next() {
		d, err := scanDatum(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return results, nil
}

// FindMostRecent 每流最新一条（DISTINCT ON）
func (r *PostgresDatumRepository) FindMostRecent(ctx context.Context, streamIDs []uuid.UUID) ([]*domain.Datum, error) {
	if len(streamIDs) == 0 {
		return nil, nil
	}

	query := `SELECT DISTINCT ON (d.stream_id) ` + datumColumns + `
		FROM datum d
		WHERE d.stream_id = ANY($1)
		ORDER BY d.stream_id, d.ts DESC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(uuidStrings(streamIDs)))
	if err != nil {
		return nil, fmt.Errorf("failed to query most recent datum: %w", err)
	}
	defer rows.Close()

	var results []*domain.Datum
	for rows.Next() {
		d, err := scanDatum(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return results, nil
}

// aggregateBucketExpr 聚合桶表达式（$2 为时区）
// 日历粒度按流时区本地日历边界截断后换回 UTC 瞬时；
// of-period 族映射到 2001-01-01 起的合成时间轴（2001-01-01 为周一）：
//   HourOfDay          → 2001-01-01 + hour
//   SeasonalHourOfDay  → 2001-01-01 + season*3mo + hour（season: Dec-Feb=0, Mar-May=1, ...）
//   DayOfWeek          → 2001-01-01 + (isodow-1) days
//   SeasonalDayOfWeek  → 2001-01-01 + season*3mo + (isodow-1) days
func aggregateBucketExpr(agg domain.Aggregation) (string, error) {
	seasonExpr := `(((extract(month from d.ts AT TIME ZONE $2)::int) % 12) / 3)`
	switch agg {
	case domain.AggregationMinute:
		return `date_trunc('minute', d.ts AT TIME ZONE $2) AT TIME ZONE $2`, nil
	case domain.AggregationHour:
		return `date_trunc('hour', d.ts AT TIME ZONE $2) AT TIME ZONE $2`, nil
	case domain.AggregationDay:
		return `date_trunc('day', d.ts AT TIME ZONE $2) AT TIME ZONE $2`, nil
	case domain.AggregationMonth:
		return `date_trunc('month', d.ts AT TIME ZONE $2) AT TIME ZONE $2`, nil
	case domain.AggregationYear:
		return `date_trunc('year', d.ts AT TIME ZONE $2) AT TIME ZONE $2`, nil
	case domain.AggregationRunningTotal:
		// 全范围单桶；$2 仍被引用以保持参数位稳定
		return `(timestamp '2001-01-01' AT TIME ZONE $2)`, nil
	case domain.AggregationHourOfDay:
		return `(timestamp '2001-01-01' + extract(hour from d.ts AT TIME ZONE $2)::int * interval '1 hour') AT TIME ZONE 'UTC'`, nil
	case domain.AggregationSeasonalHourOfDay:
		return `(timestamp '2001-01-01' + ` + seasonExpr + ` * interval '3 month' + extract(hour from d.ts AT TIME ZONE $2)::int * interval '1 hour') AT TIME ZONE 'UTC'`, nil
	case domain.AggregationDayOfWeek:
		return `(timestamp '2001-01-01' + (extract(isodow from d.ts AT TIME ZONE $2)::int - 1) * interval '1 day') AT TIME ZONE 'UTC'`, nil
	case domain.AggregationSeasonalDayOfWeek:
		return `(timestamp '2001-01-01' + ` + seasonExpr + ` * interval '3 month' + (extract(isodow from d.ts AT TIME ZONE $2)::int - 1) * interval '1 day') AT TIME ZONE 'UTC'`, nil
	default:
		return "", fmt.Errorf("aggregation %s not executable", agg)
	}
}

type aggKey struct {
	stream uuid.UUID
	ts     time.Time
}

// FindAggregate 在单一时区内执行聚合查询
// instantaneous 槽位取桶内 avg/min/max；accumulating 槽位取桶内 max-min 增量
// 两段查询列顺序契约：stream_id, ts_start, idx, (统计列...)
func (r *PostgresDatumRepository) FindAggregate(ctx context.Context, agg domain.Aggregation, zone string, streamIDs []uuid.UUID, start, end time.Time, offset, limit int) ([]*domain.AggregateDatum, error) {
	if len(streamIDs) == 0 {
		return nil, nil
	}
	bucket, err := aggregateBucketExpr(agg)
	if err != nil {
		return nil, err
	}
	if zone == "" {
		zone = "UTC"
	}

	results := make(map[aggKey]*domain.AggregateDatum)
	var order []aggKey

	ensure := func(k aggKey) *domain.AggregateDatum {
		if d, ok := results[k]; ok {
			return d
		}
		d := &domain.AggregateDatum{StreamID: k.stream, Timestamp: k.ts, Aggregation: agg}
		results[k] = d
		order = append(order, k)
		return d
	}

	// instantaneous: 每槽位 avg/min/max
	instQuery := `
		SELECT d.stream_id, ` + bucket + ` AS ts_start, p.idx::int,
			avg(p.val), min(p.val), max(p.val)
		FROM datum d, unnest(d.data_i) WITH ORDINALITY AS p(val, idx)
		WHERE d.stream_id = ANY($1) AND d.ts >= $3 AND d.ts < $4 AND p.val IS NOT NULL
		GROUP BY d.stream_id, ts_start, p.idx
		ORDER BY ts_start, d.stream_id, p.idx`

	rows, err := r.db.QueryContext(ctx, instQuery, pq.Array(uuidStrings(streamIDs)), zone, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query instantaneous aggregates: %w", err)
	}
	for rows.Next() {
		var streamID uuid.UUID
		var tsStart time.Time
		var idx int
		var avg, min, max float64
		if err := rows.Scan(&streamID, &tsStart, &idx, &avg, &min, &max); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan instantaneous aggregate: %w", err)
		}
		d := ensure(aggKey{stream: streamID, ts: tsStart.UTC()})
		setSlot(&d.Instantaneous, idx-1, avg)
		setSlot(&d.Minimum, idx-1, min)
		setSlot(&d.Maximum, idx-1, max)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	rows.Close()

	// accumulating: 每槽位桶内增量（max-min）
	accuQuery := `
		SELECT d.stream_id, ` + bucket + ` AS ts_start, p.idx::int,
			max(p.val) - min(p.val)
		FROM datum d, unnest(d.data_a) WITH ORDINALITY AS p(val, idx)
		WHERE d.stream_id = ANY($1) AND d.ts >= $3 AND d.ts < $4 AND p.val IS NOT NULL
		GROUP BY d.stream_id, ts_start, p.idx
		ORDER BY ts_start, d.stream_id, p.idx`

	rows, err = r.db.QueryContext(ctx, accuQuery, pq.Array(uuidStrings(streamIDs)), zone, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query accumulating aggregates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var streamID uuid.UUID
		var tsStart time.Time
		var idx int
		var diff float64
		if err := rows.Scan(&streamID, &tsStart, &idx, &diff); err != nil {
			return nil, fmt.Errorf("failed to scan accumulating aggregate: %w", err)
		}
		d := ensure(aggKey{stream: streamID, ts: tsStart.UTC()})
		setSlot(&d.Accumulating, idx-1, diff)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	// 分页（聚合结果在内存中按桶顺序切片）
	if offset < 0 {
		offset = 0
	}
	if offset >= len(order) {
		return nil, nil
	}
	endIdx := len(order)
	if limit > 0 && offset+limit < endIdx {
		endIdx = offset + limit
	}

	out := make([]*domain.AggregateDatum, 0, endIdx-offset)
	for _, k := range order[offset:endIdx] {
		out = append(out, results[k])
	}
	return out, nil
}

// setSlot 按槽位写入聚合值，必要时扩容
func setSlot(vals *[]*float64, idx int, v float64) {
	if idx < 0 {
		return
	}
	for len(*vals) <= idx {
		*vals = append(*vals, nil)
	}
	f := v
	(*vals)[idx] = &f
}

// ReportableInterval 流集合的数据起止范围
func (r *PostgresDatumRepository) ReportableInterval(ctx context.Context, streamIDs []uuid.UUID) (*time.Time, *time.Time, error) {
	if len(streamIDs) == 0 {
		return nil, nil, nil
	}

	var start, end sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT min(d.ts), max(d.ts) FROM datum d WHERE d.stream_id = ANY($1)`,
		pq.Array(uuidStrings(streamIDs))).Scan(&start, &end)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query reportable interval: %w", err)
	}
	if !start.Valid || !end.Valid {
		return nil, nil, nil
	}
	s, e := start.Time, end.Time
	return &s, &e, nil
}

// AvailableSources 对象在时间范围内有数据的 source_id 集合
func (r *PostgresDatumRepository) AvailableSources(ctx context.Context, kind domain.ObjectKind, objectID int64, start, end *time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT s.source_id
		FROM datum_streams s
		JOIN datum d ON d.stream_id = s.stream_id
		WHERE s.kind = $1 AND s.object_id = $2`
	args := []interface{}{kindValue(kind), objectID}
	argN := 3

	if start != nil {
		query += fmt.Sprintf(" AND d.ts >= $%d", argN)
		args = append(args, *start)
		argN++
	}
	if end != nil {
		query += fmt.Sprintf(" AND d.ts < $%d", argN)
		args = append(args, *end)
		argN++
	}
	query += " ORDER BY s.source_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query available sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return sources, nil
}

// StoreAuxiliary 写入（或覆盖）辅助修正记录
func (r *PostgresDatumRepository) StoreAuxiliary(ctx context.Context, aux *domain.DatumAuxiliary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO datum_aux (stream_id, ts, aux_type, updated, notes, jdata_af, jdata_as)
		VALUES ($1, $2, $3, now(), $4, $5, $6)
		ON CONFLICT (stream_id, ts, aux_type) DO UPDATE SET
			updated = now(),
			notes = EXCLUDED.notes,
			jdata_af = EXCLUDED.jdata_af,
			jdata_as = EXCLUDED.jdata_as`,
		aux.StreamID, aux.Timestamp, string(aux.Type), aux.Notes,
		[]byte(aux.Final), []byte(aux.Start),
	)
	if err != nil {
		return fmt.Errorf("failed to store datum auxiliary: %w", err)
	}
	return nil
}

// MoveAuxiliary 原子迁移辅助记录：删除旧键并写入新记录在同一事务内完成
func (r *PostgresDatumRepository) MoveAuxiliary(ctx context.Context, from domain.AuxiliaryKey, to *domain.DatumAuxiliary) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM datum_aux WHERE stream_id = $1 AND ts = $2 AND aux_type = $3`,
		from.StreamID, from.Timestamp, string(from.Type))
	if err != nil {
		return false, fmt.Errorf("failed to delete datum auxiliary: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datum_aux (stream_id, ts, aux_type, updated, notes, jdata_af, jdata_as)
		VALUES ($1, $2, $3, now(), $4, $5, $6)
		ON CONFLICT (stream_id, ts, aux_type) DO UPDATE SET
			updated = now(),
			notes = EXCLUDED.notes,
			jdata_af = EXCLUDED.jdata_af,
			jdata_as = EXCLUDED.jdata_as`,
		to.StreamID, to.Timestamp, string(to.Type), to.Notes,
		[]byte(to.Final), []byte(to.Start),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert moved datum auxiliary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit auxiliary move: %w", err)
	}
	return true, nil
}

// BulkLoad 高吞吐批量导入
// COPY 进事务级临时表后一次性合并进 datum（含审计累加），走独立连接池
func (r *PostgresDatumRepository) BulkLoad(ctx context.Context, datum <-chan *domain.Datum) (int64, error) {
	tx, err := r.bulkDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin bulk-load tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		CREATE TEMP TABLE datum_import (LIKE datum INCLUDING DEFAULTS)
		ON COMMIT DROP`)
	if err != nil {
		return 0, fmt.Errorf("failed to create import table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("datum_import",
		"stream_id", "ts", "data_i", "data_a", "data_s", "data_t"))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}

	var count int64
	for d := range datum {
		_, err = stmt.ExecContext(ctx,
			d.StreamID, d.Timestamp,
			pq.Array(floatsToNull(d.Instantaneous)),
			pq.Array(floatsToNull(d.Accumulating)),
			pq.Array(stringsToNull(d.Status)),
			pq.Array(d.Tags),
		)
		if err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy datum row: %w", err)
		}
		count++
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}

	// 合并：同键后写覆盖
	_, err = tx.ExecContext(ctx, `
		INSERT INTO datum (stream_id, ts, data_i, data_a, data_s, data_t, received)
		SELECT DISTINCT ON (stream_id, ts) stream_id, ts, data_i, data_a, data_s, data_t, now()
		FROM datum_import
		ORDER BY stream_id, ts
		ON CONFLICT (stream_id, ts) DO UPDATE SET
			data_i = EXCLUDED.data_i,
			data_a = EXCLUDED.data_a,
			data_s = EXCLUDED.data_s,
			data_t = EXCLUDED.data_t,
			received = now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to merge imported datum: %w", err)
	}

	// 审计累加（集合运算，一次覆盖整批）
	_, err = tx.ExecContext(ctx, `
		INSERT INTO aud_datm_hourly (stream_id, ts_start, datum_count, prop_count, prop_u_count)
		SELECT stream_id, date_trunc('hour', ts AT TIME ZONE 'UTC') AT TIME ZONE 'UTC',
			count(*),
			coalesce(sum((SELECT count(v) FROM unnest(data_i) v WHERE v IS NOT NULL)), 0),
			coalesce(sum((SELECT count(v) FROM unnest(data_a) v WHERE v IS NOT NULL)), 0)
		FROM datum_import
		GROUP BY 1, 2
		ON CONFLICT (stream_id, ts_start) DO UPDATE SET
			datum_count = aud_datm_hourly.datum_count + EXCLUDED.datum_count,
			prop_count = aud_datm_hourly.prop_count + EXCLUDED.prop_count,
			prop_u_count = aud_datm_hourly.prop_u_count + EXCLUDED.prop_u_count`)
	if err != nil {
		return 0, fmt.Errorf("failed to increment bulk audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk load: %w", err)
	}
	return count, nil
}

// uuidStrings UUID 列表转字符串数组（pq.Array 参数）
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
