package service

import (
	"context"
	"fmt"
	"time"

	"gridstream-data/internal/cache"
	"gridstream-data/internal/repository"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// NodeOwnership 节点归属信息（注册服务返回）
type NodeOwnership struct {
	NodeID   int64 `json:"nodeId"`
	OwnerID  int64 `json:"ownerId"`
	Archived bool  `json:"archived"`
}

// OwnershipClient 节点归属注册服务客户端
// 归属查询走 HTTP 注册服务，结果按 TTL 缓存以免每条查询都出网
type OwnershipClient struct {
	client *resty.Client
	cache  *cache.Cache[int64, *NodeOwnership]
	logger *zap.Logger
}

// NewOwnershipClient 创建归属客户端
func NewOwnershipClient(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger) *OwnershipClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &OwnershipClient{
		client: client,
		cache:  cache.New[int64, *NodeOwnership](cache.Config{Capacity: 10000, TTL: cacheTTL}),
		logger: logger,
	}
}

// GetNodeOwnership 查询节点归属；节点未注册返回 repository.ErrNotFound
func (c *OwnershipClient) GetNodeOwnership(ctx context.Context, nodeID int64) (*NodeOwnership, error) {
	if own, ok := c.cache.Get(nodeID); ok {
		return own, nil
	}

	var own NodeOwnership
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&own).
		Get(fmt.Sprintf("/api/v1/nodes/%d/ownership", nodeID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch node ownership: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, repository.ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("registry returned status %d for node %d", resp.StatusCode(), nodeID)
	}

	c.cache.Put(nodeID, &own)
	return &own, nil
}

// Invalidate 使某节点的归属缓存失效
func (c *OwnershipClient) Invalidate(nodeID int64) {
	c.cache.Invalidate(nodeID)
}
