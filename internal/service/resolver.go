package service

import (
	"context"
	"fmt"

	"gridstream-data/internal/cache"
	"gridstream-data/internal/domain"
	"gridstream-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StreamResolver 流标识解析器
// 维护两个独立配置的缓存：stream_id 键的全量元数据缓存，和自然键到 stream_id 的轻量缓存
// 缓存写入允许竞态后写覆盖——存储行才是数据源
type StreamResolver struct {
	repo      repository.StreamsRepository
	metaCache *cache.Cache[uuid.UUID, *domain.Stream]
	idCache   *cache.Cache[domain.StreamIdentity, uuid.UUID]
	logger    *zap.Logger
}

// NewStreamResolver 创建流标识解析器
func NewStreamResolver(repo repository.StreamsRepository, metaCfg, idCfg cache.Config, logger *zap.Logger) *StreamResolver {
	return &StreamResolver{
		repo:      repo,
		metaCache: cache.New[uuid.UUID, *domain.Stream](metaCfg),
		idCache:   cache.New[domain.StreamIdentity, uuid.UUID](idCfg),
		logger:    logger,
	}
}

// ResolveForWrite 写路径解析：不存在则创建
// 并发解析同一标识的所有调用者保证得到同一个 stream_id（存储层唯一约束 + 竞态回读）
func (r *StreamResolver) ResolveForWrite(ctx context.Context, identity domain.StreamIdentity, timeZone string) (*domain.Stream, error) {
	if s, ok := r.cached(identity); ok {
		return s, nil
	}

	stream, err := r.repo.CreateStreamIfAbsent(ctx, identity, timeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stream for write: %w", err)
	}

	r.populate(stream)
	return stream, nil
}

// ResolveForRead 只读解析：不存在返回 repository.ErrNotFound，永不创建
func (r *StreamResolver) ResolveForRead(ctx context.Context, identity domain.StreamIdentity) (*domain.Stream, error) {
	if s, ok := r.cached(identity); ok {
		return s, nil
	}

	stream, err := r.repo.FindStreamByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	r.populate(stream)
	return stream, nil
}

// GetStream 按 stream_id 获取流元数据（接收管道的 stream-datum 数组形态使用）
func (r *StreamResolver) GetStream(ctx context.Context, streamID uuid.UUID) (*domain.Stream, error) {
	if s, ok := r.metaCache.Get(streamID); ok {
		return s, nil
	}

	stream, err := r.repo.GetStream(ctx, streamID)
	if err != nil {
		return nil, err
	}

	r.populate(stream)
	return stream, nil
}

// EnsureNames 保证流的属性名列表覆盖给定名称集合
// 槽位对齐依赖持久化的名称顺序：有缺失时追加落库（只增不改序）并刷新缓存
func (r *StreamResolver) EnsureNames(ctx context.Context, stream *domain.Stream, namesI, namesA, namesS []string) (*domain.Stream, error) {
	missI := missingNames(stream.NamesInstantaneous, namesI)
	missA := missingNames(stream.NamesAccumulating, namesA)
	missS := missingNames(stream.NamesStatus, namesS)
	if len(missI) == 0 && len(missA) == 0 && len(missS) == 0 {
		return stream, nil
	}

	updated, err := r.repo.AppendStreamNames(ctx, stream.StreamID, missI, missA, missS)
	if err != nil {
		return nil, fmt.Errorf("failed to extend stream property names: %w", err)
	}
	r.populate(updated)
	return updated, nil
}

func missingNames(existing, wanted []string) []string {
	if len(wanted) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		have[n] = struct{}{}
	}
	var miss []string
	for _, n := range wanted {
		if _, ok := have[n]; !ok {
			miss = append(miss, n)
		}
	}
	return miss
}

// Invalidate 使某流的缓存失效（元数据管理路径变更后调用）
func (r *StreamResolver) Invalidate(stream *domain.Stream) {
	r.metaCache.Invalidate(stream.StreamID)
	r.idCache.Invalidate(stream.Identity())
}

func (r *StreamResolver) cached(identity domain.StreamIdentity) (*domain.Stream, bool) {
	id, ok := r.idCache.Get(identity)
	if !ok {
		return nil, false
	}
	s, ok := r.metaCache.Get(id)
	return s, ok
}

func (r *StreamResolver) populate(stream *domain.Stream) {
	r.metaCache.Put(stream.StreamID, stream)
	r.idCache.Put(stream.Identity(), stream.StreamID)
}
