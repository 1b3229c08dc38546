package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gridstream-data/internal/domain"
	"gridstream-data/internal/repository"
	"gridstream-data/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueryServiceConfig 查询门面配置
type QueryServiceConfig struct {
	// FilteredResultsLimit 单次查询返回行数上限；请求超出时静默收窄
	FilteredResultsLimit int
}

// QueryService 查询门面
// 统一入口：校验条件、解析流集合、强制聚合级别、按时区分片执行，
// 并对每个参与查询的流累加审计计数
type QueryService struct {
	streams  repository.StreamsRepository
	datum    repository.DatumRepository
	latest   *store.LatestDatumStore
	enforcer *AggregationEnforcer
	auditor  *QueryAuditor
	cfg      QueryServiceConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewQueryService 创建查询门面；latest 可为 nil（最新值走存储）
func NewQueryService(streams repository.StreamsRepository, datum repository.DatumRepository, latest *store.LatestDatumStore, enforcer *AggregationEnforcer, auditor *QueryAuditor, cfg QueryServiceConfig, logger *zap.Logger) *QueryService {
	if cfg.FilteredResultsLimit <= 0 {
		cfg.FilteredResultsLimit = 1000
	}
	return &QueryService{
		streams:  streams,
		datum:    datum,
		latest:   latest,
		enforcer: enforcer,
		auditor:  auditor,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// clampPage 分页参数收拢到合法区间：offset 负数归零，max 超限收窄
func (s *QueryService) clampPage(offset, max int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if max <= 0 || max > s.cfg.FilteredResultsLimit {
		max = s.cfg.FilteredResultsLimit
	}
	return offset, max
}

// resolveStreams 按条件解析流集合并累加审计计数
func (s *QueryService) resolveStreams(ctx context.Context, c *domain.DatumCriteria) ([]*domain.Stream, error) {
	streams, err := s.streams.ListStreams(ctx, c.Kind, c.ObjectIDs, c.SourceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve streams for query: %w", err)
	}
	if s.auditor != nil {
		for _, st := range streams {
			s.auditor.Increment(st.StreamID)
		}
	}
	return streams, nil
}

// FindFilteredRaw 原始 datum 分页查询
// MostRecent 条件走最新值缓存，未命中的流回落存储；否则按时间范围查询
func (s *QueryService) FindFilteredRaw(ctx context.Context, c *domain.DatumCriteria, sorts []domain.SortDescriptor, offset, max int) ([]*domain.Datum, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	offset, max = s.clampPage(offset, max)

	streams, err := s.resolveStreams(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		return nil, nil
	}
	ids := streamIDs(streams)

	if c.MostRecent {
		return s.findMostRecent(ctx, ids)
	}

	results, err := s.datum.FindFiltered(ctx, ids, c.StartDate, c.EndDate, sorts, offset, max)
	if err != nil {
		return nil, fmt.Errorf("failed to query datum: %w", err)
	}
	return results, nil
}

// findMostRecent 每流最新一条；缓存命中的流不触存储
func (s *QueryService) findMostRecent(ctx context.Context, ids []uuid.UUID) ([]*domain.Datum, error) {
	var out []*domain.Datum
	var misses []uuid.UUID

	if s.latest != nil {
		for _, id := range ids {
			d, err := s.latest.Get(ctx, id)
			if err != nil {
				misses = append(misses, id)
				continue
			}
			out = append(out, d)
		}
	} else {
		misses = ids
	}

	if len(misses) > 0 {
		fetched, err := s.datum.FindMostRecent(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("failed to query most recent datum: %w", err)
		}
		out = append(out, fetched...)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].StreamID.String() < out[j].StreamID.String()
	})
	return out, nil
}

// FindFilteredAggregate 聚合查询
// 条件校验 → 聚合级别强制 → 缺省范围替换 → 按时区分片执行 → 合并排序分页
func (s *QueryService) FindFilteredAggregate(ctx context.Context, c *domain.DatumCriteria, sorts []domain.SortDescriptor, offset, max int) ([]*domain.AggregateDatum, domain.Aggregation, error) {
	if err := c.Validate(); err != nil {
		return nil, domain.AggregationNone, err
	}
	offset, max = s.clampPage(offset, max)

	requested := c.Aggregation
	if requested == domain.AggregationNone {
		requested = domain.AggregationHour
	}
	effective := s.enforcer.Enforce(requested, c.StartDate, c.EndDate)
	if effective != requested {
		s.logger.Debug("Aggregation level enforced",
			zap.String("requested", requested.String()),
			zap.String("effective", effective.String()),
		)
	}

	start := PlatformEpoch
	if c.StartDate != nil {
		start = *c.StartDate
	}
	end := s.now()
	if c.EndDate != nil {
		end = *c.EndDate
	}

	streams, err := s.resolveStreams(ctx, c)
	if err != nil {
		return nil, effective, err
	}
	if len(streams) == 0 {
		return nil, effective, nil
	}

	// 每个时区分片各取满前 offset+max 行，合并排序后统一切页
	var merged []*domain.AggregateDatum
	for _, zr := range PartitionByZone(streams, start, end, effective) {
		rows, err := s.datum.FindAggregate(ctx, effective, zr.Zone, zr.StreamIDs, zr.Start, zr.End, 0, offset+max)
		if err != nil {
			return nil, effective, fmt.Errorf("failed to query aggregate datum in zone %s: %w", zr.Zone, err)
		}
		merged = append(merged, rows...)
	}

	sortAggregateDatum(merged, sorts)

	if offset >= len(merged) {
		return nil, effective, nil
	}
	if offset+max > len(merged) {
		max = len(merged) - offset
	}
	return merged[offset : offset+max], effective, nil
}

// ReportableInterval 流集合的数据起止范围；无数据时两端均为 nil
func (s *QueryService) ReportableInterval(ctx context.Context, c *domain.DatumCriteria) (*time.Time, *time.Time, error) {
	streams, err := s.resolveStreams(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	if len(streams) == 0 {
		return nil, nil, nil
	}
	return s.datum.ReportableInterval(ctx, streamIDs(streams))
}

// AvailableSources 对象在时间范围内有数据的 source_id 集合
// 与其它读路径一致，为对象名下每个流累加查询审计计数
func (s *QueryService) AvailableSources(ctx context.Context, kind domain.ObjectKind, objectID int64, start, end *time.Time) ([]string, error) {
	if _, err := s.resolveStreams(ctx, &domain.DatumCriteria{Kind: kind, ObjectIDs: []int64{objectID}}); err != nil {
		return nil, err
	}
	return s.datum.AvailableSources(ctx, kind, objectID, start, end)
}

// sortAggregateDatum 合并结果排序；缺省按 (时间, 流ID) 升序，流ID 兜底保证确定性
func sortAggregateDatum(rows []*domain.AggregateDatum, sorts []domain.SortDescriptor) {
	if len(sorts) == 0 {
		sorts = []domain.SortDescriptor{{Key: "time"}, {Key: "stream"}}
	}
	sort.Slice(rows, func(i, j int) bool {
		for _, sd := range sorts {
			var less, equal bool
			switch sd.Key {
			case "stream":
				a, b := rows[i].StreamID.String(), rows[j].StreamID.String()
				less, equal = a < b, a == b
			default: // "time"
				less = rows[i].Timestamp.Before(rows[j].Timestamp)
				equal = rows[i].Timestamp.Equal(rows[j].Timestamp)
			}
			if equal {
				continue
			}
			if sd.Descending {
				return !less
			}
			return less
		}
		return rows[i].StreamID.String() < rows[j].StreamID.String()
	})
}

func streamIDs(streams []*domain.Stream) []uuid.UUID {
	ids := make([]uuid.UUID, len(streams))
	for i, st := range streams {
		ids[i] = st.StreamID
	}
	return ids
}
