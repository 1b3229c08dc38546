package repository

import (
	"context"
	"time"

	"gridstream-data/internal/domain"

	"github.com/google/uuid"
)

// AuditRepository 审计 rollup Repository接口
// 小时行由 datum 写入路径在同事务内累加；这里负责查询计数批量写入与天/月物化
type AuditRepository interface {
	// AddQueryCounts 批量累加查询计数到各流当前小时行（查询审计写入器每个刷新周期调用一次）
	AddQueryCounts(ctx context.Context, hourStart time.Time, counts map[uuid.UUID]int64) error

	// MaterializeDay 将某天（UTC）的小时行汇总物化为天行；重复执行为重算覆盖，不会重复计数
	MaterializeDay(ctx context.Context, day time.Time) (int64, error)

	// MaterializeMonth 将某月（UTC）的天行汇总物化为月行，并置 month_present
	MaterializeMonth(ctx context.Context, month time.Time) (int64, error)

	// GetRollup 读取单条 rollup 计数行；不存在返回 ErrNotFound
	GetRollup(ctx context.Context, streamID uuid.UUID, agg domain.Aggregation, periodStart time.Time) (*domain.AuditRollup, error)
}
