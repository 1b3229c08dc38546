package service

import (
	"context"
	"errors"
	"time"

	"gridstream-data/internal/domain"
	"gridstream-data/internal/repository"
)

// ErrPermissionDenied 调用者无权访问请求的对象
var ErrPermissionDenied = errors.New("permission denied")

// Actor 调用者身份；授权判定只看显式传入的 Actor，不读任何环境态
type Actor struct {
	UserID int64
	Admin  bool
}

// AuthorizedQueryService 查询门面的授权装饰器
// 节点对象逐一核对归属：非属主且非管理员拒绝，已归档节点对非管理员不可见
type AuthorizedQueryService struct {
	inner     *QueryService
	ownership *OwnershipClient
}

// NewAuthorizedQueryService 创建授权装饰器
func NewAuthorizedQueryService(inner *QueryService, ownership *OwnershipClient) *AuthorizedQueryService {
	return &AuthorizedQueryService{inner: inner, ownership: ownership}
}

// authorize 核对 Actor 对条件内全部节点的访问权
func (s *AuthorizedQueryService) authorize(ctx context.Context, actor Actor, kind domain.ObjectKind, objectIDs []int64) error {
	if actor.Admin {
		return nil
	}
	if kind != domain.ObjectKindNode {
		// 位置流是公开聚合数据，无归属概念
		return nil
	}
	for _, nodeID := range objectIDs {
		own, err := s.ownership.GetNodeOwnership(ctx, nodeID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrPermissionDenied
			}
			return err
		}
		if own.OwnerID != actor.UserID || own.Archived {
			return ErrPermissionDenied
		}
	}
	return nil
}

// FindFilteredRaw 授权后的原始 datum 查询
func (s *AuthorizedQueryService) FindFilteredRaw(ctx context.Context, actor Actor, c *domain.DatumCriteria, sorts []domain.SortDescriptor, offset, max int) ([]*domain.Datum, error) {
	if err := s.authorize(ctx, actor, c.Kind, c.ObjectIDs); err != nil {
		return nil, err
	}
	return s.inner.FindFilteredRaw(ctx, c, sorts, offset, max)
}

// FindFilteredAggregate 授权后的聚合查询
func (s *AuthorizedQueryService) FindFilteredAggregate(ctx context.Context, actor Actor, c *domain.DatumCriteria, sorts []domain.SortDescriptor, offset, max int) ([]*domain.AggregateDatum, domain.Aggregation, error) {
	if err := s.authorize(ctx, actor, c.Kind, c.ObjectIDs); err != nil {
		return nil, domain.AggregationNone, err
	}
	return s.inner.FindFilteredAggregate(ctx, c, sorts, offset, max)
}

// ReportableInterval 授权后的数据范围查询
func (s *AuthorizedQueryService) ReportableInterval(ctx context.Context, actor Actor, c *domain.DatumCriteria) (*time.Time, *time.Time, error) {
	if err := s.authorize(ctx, actor, c.Kind, c.ObjectIDs); err != nil {
		return nil, nil, err
	}
	return s.inner.ReportableInterval(ctx, c)
}

// AvailableSources 授权后的可用 source 查询
func (s *AuthorizedQueryService) AvailableSources(ctx context.Context, actor Actor, kind domain.ObjectKind, objectID int64, start, end *time.Time) ([]string, error) {
	if err := s.authorize(ctx, actor, kind, []int64{objectID}); err != nil {
		return nil, err
	}
	return s.inner.AvailableSources(ctx, kind, objectID, start, end)
}
