package service

import (
	"context"
	"time"

	"gridstream-data/internal/repository"

	"go.uber.org/zap"
)

// RollupService 审计汇总任务
// 周期性把小时桶物化为天桶、天桶物化为月桶；物化为整体覆盖写，
// 重复执行结果一致，调度重叠或补跑都安全
type RollupService struct {
	repo     repository.AuditRepository
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewRollupService 创建审计汇总任务
func NewRollupService(repo repository.AuditRepository, interval time.Duration, logger *zap.Logger) *RollupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RollupService{
		repo:     repo,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run 汇总循环；启动时先跑一轮，之后按间隔触发
func (s *RollupService) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce 物化当天与前一天的天桶、当月与上月的月桶
// 覆盖前一周期是为了吸收迟到的小时增量
func (s *RollupService) runOnce(ctx context.Context) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		rows, err := s.repo.MaterializeDay(ctx, day)
		if err != nil {
			s.logger.Warn("Failed to materialize daily audit rollup",
				zap.Time("day", day),
				zap.Error(err),
			)
			continue
		}
		s.logger.Debug("Materialized daily audit rollup",
			zap.Time("day", day),
			zap.Int64("rows", rows),
		)
	}

	for _, month := range []time.Time{thisMonth.AddDate(0, -1, 0), thisMonth} {
		rows, err := s.repo.MaterializeMonth(ctx, month)
		if err != nil {
			s.logger.Warn("Failed to materialize monthly audit rollup",
				zap.Time("month", month),
				zap.Error(err),
			)
			continue
		}
		s.logger.Debug("Materialized monthly audit rollup",
			zap.Time("month", month),
			zap.Int64("rows", rows),
		)
	}
}
