package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gridstream-data/internal/domain"

	"github.com/google/uuid"
)

// PostgresAuditRepository 审计 rollup Repository实现
type PostgresAuditRepository struct {
	db *sql.DB
}

// NewPostgresAuditRepository 创建审计Repository
func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

// 确保实现了接口
var _ AuditRepository = (*PostgresAuditRepository)(nil)

// AddQueryCounts 批量累加查询计数（单条多值 INSERT，一个刷新周期一次存储写）
func (r *PostgresAuditRepository) AddQueryCounts(ctx context.Context, hourStart time.Time, counts map[uuid.UUID]int64) error {
	if len(counts) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO aud_datm_hourly (stream_id, ts_start, query_count) VALUES `)
	args := make([]interface{}, 0, len(counts)*2+1)
	args = append(args, hourStart.UTC().Truncate(time.Hour))

	i := 0
	for streamID, n := range counts {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("($%d, $1, $%d)", len(args)+1, len(args)+2))
		args = append(args, streamID, n)
		i++
	}
	sb.WriteString(` ON CONFLICT (stream_id, ts_start) DO UPDATE SET
		query_count = aud_datm_hourly.query_count + EXCLUDED.query_count`)

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to add query counts: %w", err)
	}
	return nil
}

// MaterializeDay 汇总某天（UTC）的小时行为天行
// SET 覆盖而非累加：重跑已物化的天不会重复计数
func (r *PostgresAuditRepository) MaterializeDay(ctx context.Context, day time.Time) (int64, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO aud_datm_daily
			(stream_id, ts_start, datum_count, prop_count, prop_u_count, query_count, datum_hourly_count)
		SELECT stream_id, $1,
			sum(datum_count), sum(prop_count), sum(prop_u_count), sum(query_count), count(*)
		FROM aud_datm_hourly
		WHERE ts_start >= $1 AND ts_start < $2
		GROUP BY stream_id
		ON CONFLICT (stream_id, ts_start) DO UPDATE SET
			datum_count = EXCLUDED.datum_count,
			prop_count = EXCLUDED.prop_count,
			prop_u_count = EXCLUDED.prop_u_count,
			query_count = EXCLUDED.query_count,
			datum_hourly_count = EXCLUDED.datum_hourly_count`,
		dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to materialize daily rollups: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MaterializeMonth 汇总某月（UTC）的天行为月行，置 month_present
func (r *PostgresAuditRepository) MaterializeMonth(ctx context.Context, month time.Time) (int64, error) {
	m := month.UTC()
	monthStart := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO aud_datm_monthly
			(stream_id, ts_start, datum_count, prop_count, prop_u_count, query_count, datum_daily_count, month_present)
		SELECT stream_id, $1,
			sum(datum_count), sum(prop_count), sum(prop_u_count), sum(query_count), count(*), TRUE
		FROM aud_datm_daily
		WHERE ts_start >= $1 AND ts_start < $2
		GROUP BY stream_id
		ON CONFLICT (stream_id, ts_start) DO UPDATE SET
			datum_count = EXCLUDED.datum_count,
			prop_count = EXCLUDED.prop_count,
			prop_u_count = EXCLUDED.prop_u_count,
			query_count = EXCLUDED.query_count,
			datum_daily_count = EXCLUDED.datum_daily_count,
			month_present = TRUE`,
		monthStart, monthEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to materialize monthly rollups: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetRollup 读取单条 rollup 计数行
// 列顺序契约：datum_count, prop_count, prop_u_count, query_count [, child_count [, month_present]]
func (r *PostgresAuditRepository) GetRollup(ctx context.Context, streamID uuid.UUID, agg domain.Aggregation, periodStart time.Time) (*domain.AuditRollup, error) {
	rollup := &domain.AuditRollup{
		StreamID:    streamID,
		Aggregation: agg,
		PeriodStart: periodStart.UTC(),
	}

	var err error
	switch agg {
	case domain.AggregationHour:
		err = r.db.QueryRowContext(ctx, `
			SELECT datum_count, prop_count, prop_u_count, query_count
			FROM aud_datm_hourly WHERE stream_id = $1 AND ts_start = $2`,
			streamID, rollup.PeriodStart).
			Scan(&rollup.DatumCount, &rollup.PropCount, &rollup.PropUpdateCount, &rollup.QueryCount)
	case domain.AggregationDay:
		err = r.db.QueryRowContext(ctx, `
			SELECT datum_count, prop_count, prop_u_count, query_count, datum_hourly_count
			FROM aud_datm_daily WHERE stream_id = $1 AND ts_start = $2`,
			streamID, rollup.PeriodStart).
			Scan(&rollup.DatumCount, &rollup.PropCount, &rollup.PropUpdateCount, &rollup.QueryCount, &rollup.ChildCount)
	case domain.AggregationMonth:
		err = r.db.QueryRowContext(ctx, `
			SELECT datum_count, prop_count, prop_u_count, query_count, datum_daily_count, month_present
			FROM aud_datm_monthly WHERE stream_id = $1 AND ts_start = $2`,
			streamID, rollup.PeriodStart).
			Scan(&rollup.DatumCount, &rollup.PropCount, &rollup.PropUpdateCount, &rollup.QueryCount, &rollup.ChildCount, &rollup.MonthPresent)
	default:
		return nil, fmt.Errorf("no rollup table for aggregation %s", agg)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query audit rollup: %w", err)
	}
	return rollup, nil
}
