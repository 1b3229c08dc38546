package service

import (
	"context"
	"sync"
	"time"

	"gridstream-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueryAuditorConfig 查询审计写入器配置
type QueryAuditorConfig struct {
	// UpdateDelay 相邻刷新尝试之间的间隔
	UpdateDelay time.Duration
	// FlushDelay 最大缓冲窗口；超过后即使处于故障退避期也强制尝试刷新
	FlushDelay time.Duration
	// ConnectionRecoveryDelay 存储出错后的重试退避
	ConnectionRecoveryDelay time.Duration
	// StatLogUpdateCount 每刷新这么多行输出一次诊断摘要
	StatLogUpdateCount int
}

// QueryAuditor 查询审计写入器
// 读热路径只做内存累加，单一后台刷新协程按周期批量落库；
// 存储故障期间继续累加并退避重试，计数永不丢失，也永不阻塞查询
type QueryAuditor struct {
	repo   repository.AuditRepository
	cfg    QueryAuditorConfig
	logger *zap.Logger

	mu     sync.Mutex
	counts map[uuid.UUID]int64

	flushedRows int64
	loggedRows  int64
}

// NewQueryAuditor 创建查询审计写入器
func NewQueryAuditor(repo repository.AuditRepository, cfg QueryAuditorConfig, logger *zap.Logger) *QueryAuditor {
	if cfg.UpdateDelay <= 0 {
		cfg.UpdateDelay = 10 * time.Second
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = cfg.UpdateDelay
	}
	if cfg.ConnectionRecoveryDelay <= 0 {
		cfg.ConnectionRecoveryDelay = 15 * time.Second
	}
	if cfg.StatLogUpdateCount <= 0 {
		cfg.StatLogUpdateCount = 1000
	}
	return &QueryAuditor{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		counts: make(map[uuid.UUID]int64),
	}
}

// Increment 累加一次查询计数；纯内存操作，不触存储
func (a *QueryAuditor) Increment(streamID uuid.UUID) {
	a.mu.Lock()
	a.counts[streamID]++
	a.mu.Unlock()
}

// PendingCount 当前待刷计数总量（诊断用）
func (a *QueryAuditor) PendingCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, n := range a.counts {
		total += n
	}
	return total
}

// Run 刷新循环；ctx 取消时做一次收尾尽力刷新后返回
func (a *QueryAuditor) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.UpdateDelay)
	defer ticker.Stop()

	lastSuccess := time.Now()
	var failedAt time.Time

	for {
		select {
		case <-ctx.Done():
			// 收尾尽力刷新，不再重试
			flushCtx, cancel := context.WithTimeout(context.Background(), a.cfg.UpdateDelay)
			if err := a.Flush(flushCtx); err != nil {
				a.logger.Warn("Final query audit flush failed", zap.Error(err))
			}
			cancel()
			return

		case now := <-ticker.C:
			// 故障退避期内跳过，除非超出最大缓冲窗口
			if !failedAt.IsZero() &&
				now.Sub(failedAt) < a.cfg.ConnectionRecoveryDelay &&
				now.Sub(lastSuccess) < a.cfg.FlushDelay {
				continue
			}

			if err := a.Flush(ctx); err != nil {
				if failedAt.IsZero() {
					a.logger.Warn("Query audit flush failed, will retry",
						zap.Duration("recovery_delay", a.cfg.ConnectionRecoveryDelay),
						zap.Error(err),
					)
				}
				failedAt = now
				continue
			}
			failedAt = time.Time{}
			lastSuccess = now
		}
	}
}

// Flush 原子地交换出计数表并批量落库
// 落库失败时把计数合并回在途表，保证不丢
func (a *QueryAuditor) Flush(ctx context.Context) error {
	a.mu.Lock()
	if len(a.counts) == 0 {
		a.mu.Unlock()
		return nil
	}
	draining := a.counts
	a.counts = make(map[uuid.UUID]int64)
	a.mu.Unlock()

	err := a.repo.AddQueryCounts(ctx, time.Now().UTC(), draining)
	if err != nil {
		// 合并回在途表；期间新产生的计数叠加，不覆盖
		a.mu.Lock()
		for id, n := range draining {
			a.counts[id] += n
		}
		a.mu.Unlock()
		return err
	}

	a.flushedRows += int64(len(draining))
	if a.flushedRows-a.loggedRows >= int64(a.cfg.StatLogUpdateCount) {
		a.loggedRows = a.flushedRows
		a.logger.Info("Query audit flush summary",
			zap.Int64("total_flushed_rows", a.flushedRows),
		)
	}
	return nil
}
