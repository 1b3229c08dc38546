package service

import (
	"fmt"
	"time"

	"gridstream-data/internal/domain"
)

// PlatformEpoch 平台数据起点：起始时间缺省时的替代值
var PlatformEpoch = time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)

// EnforcerConfig 聚合级别限制阈值（单位：天；0 表示该档不限制）
type EnforcerConfig struct {
	MinuteMaxDays    int
	HourMaxDays      int
	DayMaxDays       int
	HourOfDayMaxDays int
	DayOfWeekMaxDays int
}

// DefaultEnforcerConfig 默认阈值
func DefaultEnforcerConfig() EnforcerConfig {
	return EnforcerConfig{
		MinuteMaxDays:    7,
		HourMaxDays:      31,
		DayMaxDays:       730,
		HourOfDayMaxDays: 3650,
		DayOfWeekMaxDays: 3650,
	}
}

// AggregationEnforcer 聚合级别强制器
// 按查询时间范围宽度静默改写客户端请求的聚合级别，限制存储扫描开销；纯计算，不会失败
type AggregationEnforcer struct {
	cfg EnforcerConfig
	now func() time.Time
}

// NewAggregationEnforcer 创建强制器；非法阈值（负数）在启动期拒绝，而非请求期
func NewAggregationEnforcer(cfg EnforcerConfig) (*AggregationEnforcer, error) {
	if cfg.MinuteMaxDays < 0 || cfg.HourMaxDays < 0 || cfg.DayMaxDays < 0 ||
		cfg.HourOfDayMaxDays < 0 || cfg.DayOfWeekMaxDays < 0 {
		return nil, fmt.Errorf("enforcer thresholds must be >= 0: %+v", cfg)
	}
	return &AggregationEnforcer{cfg: cfg, now: time.Now}, nil
}

// Enforce 返回实际执行的聚合级别
// RunningTotal 永不受限；缺省起点替换为平台起点，缺省终点替换为当前时刻
func (e *AggregationEnforcer) Enforce(requested domain.Aggregation, start, end *time.Time) domain.Aggregation {
	if requested == domain.AggregationRunningTotal {
		return requested
	}

	bothNil := start == nil && end == nil
	if start == nil && end != nil {
		s := PlatformEpoch
		start = &s
	}
	if end == nil && start != nil {
		t := e.now()
		end = &t
	}

	var diffDays int
	if !bothNil {
		diffDays = int(end.Sub(*start).Hours() / 24)
	}

	switch {
	case bothNil && requested.FinerThan(domain.AggregationDay) && !requested.IsOfPeriod():
		// 无范围约束的细粒度查询一律抬到 Day
		return domain.AggregationDay

	case (requested == domain.AggregationHourOfDay || requested == domain.AggregationSeasonalHourOfDay) &&
		e.cfg.HourOfDayMaxDays > 0 && diffDays > e.cfg.HourOfDayMaxDays:
		return domain.AggregationMonth

	case (requested == domain.AggregationDayOfWeek || requested == domain.AggregationSeasonalDayOfWeek) &&
		e.cfg.DayOfWeekMaxDays > 0 && diffDays > e.cfg.DayOfWeekMaxDays:
		return domain.AggregationMonth

	case e.cfg.DayMaxDays > 0 && diffDays > e.cfg.DayMaxDays && requested.FinerThan(domain.AggregationMonth):
		return domain.AggregationMonth

	case e.cfg.HourMaxDays > 0 && diffDays > e.cfg.HourMaxDays && requested.FinerThan(domain.AggregationDay):
		return domain.AggregationDay

	case e.cfg.MinuteMaxDays > 0 && diffDays > e.cfg.MinuteMaxDays && requested.FinerThan(domain.AggregationHour):
		return domain.AggregationHour
	}

	return requested
}
