package repository

import (
	"context"

	"gridstream-data/internal/domain"

	"github.com/google/uuid"
)

// StreamsRepository 流元数据Repository接口
type StreamsRepository interface {
	// GetStream 按 stream_id 获取流元数据
	GetStream(ctx context.Context, streamID uuid.UUID) (*domain.Stream, error)

	// FindStreamByIdentity 按 (kind, object_id, source_id) 查找流；不存在返回 ErrNotFound，不创建
	FindStreamByIdentity(ctx context.Context, identity domain.StreamIdentity) (*domain.Stream, error)

	// CreateStreamIfAbsent 原子的 insert-or-fetch：
	// 插入命中唯一约束竞态时回读竞争胜者，保证同一标识永远只对应一个 stream_id
	CreateStreamIfAbsent(ctx context.Context, identity domain.StreamIdentity, timeZone string) (*domain.Stream, error)

	// AppendStreamNames 把缺失的属性名追加到流名称列表尾部
	// 既有名称与顺序不动，已落库 datum 的数组槽位语义保持稳定；返回更新后的流
	AppendStreamNames(ctx context.Context, streamID uuid.UUID, namesI, namesA, namesS []string) (*domain.Stream, error)

	// ListStreams 按对象/源ID集合列出流（查询门面与分区器使用）
	ListStreams(ctx context.Context, kind domain.ObjectKind, objectIDs []int64, sourceIDs []string) ([]*domain.Stream, error)
}
