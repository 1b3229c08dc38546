package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditRollup 一个流在某粒度某周期内的审计计数
// Hour 行由写入路径直接累加；Day / Month 行由 rollup 任务从子行汇总物化，
// 不变式：子行 DatumCount 之和等于父行 DatumCount（所有行均已物化时）
type AuditRollup struct {
	StreamID    uuid.UUID
	Aggregation Aggregation // Hour / Day / Month
	PeriodStart time.Time

	DatumCount      int64
	PropCount       int64 // 非空 instantaneous 值计数
	PropUpdateCount int64 // 非空 accumulating 值计数
	QueryCount      int64

	// Day 行：该天已物化的 Hour 行数；Month 行：该月已物化的 Day 行数
	ChildCount int

	// Month 行：true 表示月行是真实物化记录，而非仅由 Day 行推导
	MonthPresent bool
}
