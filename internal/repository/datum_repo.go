package repository

import (
	"context"
	"time"

	"gridstream-data/internal/domain"

	"github.com/google/uuid"
)

// DatumRepository 时序 datum Repository接口
type DatumRepository interface {
	// Upsert 幂等写入：(stream_id, ts) 已存在时整行覆盖
	// 成功写入在同一事务内累加对应小时的审计计数（丢审计可容忍，丢 datum 不可）
	Upsert(ctx context.Context, d *domain.Datum) error

	// Get 按复合键读取单条 datum；不存在返回 ErrNotFound
	Get(ctx context.Context, streamID uuid.UUID, ts time.Time) (*domain.Datum, error)

	// FindFiltered 按流集合 + 时间范围分页查询原始 datum
	FindFiltered(ctx context.Context, streamIDs []uuid.UUID, start, end *time.Time, sorts []domain.SortDescriptor, offset, limit int) ([]*domain.Datum, error)

	// FindMostRecent 每流最新一条
	FindMostRecent(ctx context.Context, streamIDs []uuid.UUID) ([]*domain.Datum, error)

	// FindAggregate 在单一时区内执行聚合查询
	// start/end 为该时区本地日历边界对应的 UTC 瞬时（由 Range Partitioner 计算）
	FindAggregate(ctx context.Context, agg domain.Aggregation, zone string, streamIDs []uuid.UUID, start, end time.Time, offset, limit int) ([]*domain.AggregateDatum, error)

	// ReportableInterval 流集合的数据起止范围；无数据返回 (nil, nil)
	ReportableInterval(ctx context.Context, streamIDs []uuid.UUID) (*time.Time, *time.Time, error)

	// AvailableSources 对象在时间范围内有数据的 source_id 集合
	AvailableSources(ctx context.Context, kind domain.ObjectKind, objectID int64, start, end *time.Time) ([]string, error)

	// StoreAuxiliary 写入（或覆盖）辅助修正记录
	StoreAuxiliary(ctx context.Context, aux *domain.DatumAuxiliary) error

	// MoveAuxiliary 原子迁移辅助记录（修正时间戳时使用）
	// 源记录不存在返回 false；删除与写入在同一事务内完成
	MoveAuxiliary(ctx context.Context, from domain.AuxiliaryKey, to *domain.DatumAuxiliary) (bool, error)

	// BulkLoad 高吞吐批量导入：独立连接池 + COPY 进临时表后合并，
	// 不与交互事务争用连接；返回导入行数
	BulkLoad(ctx context.Context, datum <-chan *domain.Datum) (int64, error)
}
