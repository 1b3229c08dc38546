package domain

import (
	"errors"
	"time"
)

// ErrInvalidCriteria 过滤条件无效（如聚合查询缺少任何对象标识）
var ErrInvalidCriteria = errors.New("invalid datum criteria")

// DatumCriteria 查询过滤条件（值对象，不持久化）
type DatumCriteria struct {
	Kind      ObjectKind
	ObjectIDs []int64
	SourceIDs []string

	StartDate *time.Time
	EndDate   *time.Time

	Aggregation Aggregation

	// MostRecent 只取每流最新一条，绕过聚合级别限制
	MostRecent bool
}

// HasObjectCriteria 是否带有任何对象标识条件
func (c *DatumCriteria) HasObjectCriteria() bool {
	return len(c.ObjectIDs) > 0
}

// Validate 校验过滤条件自洽
func (c *DatumCriteria) Validate() error {
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return ErrInvalidCriteria
	}
	if c.Aggregation != AggregationNone && !c.HasObjectCriteria() {
		// 聚合查询必须至少限定对象，避免全表扫描
		return ErrInvalidCriteria
	}
	if c.MostRecent && c.Aggregation != AggregationNone {
		// 最新值查询绕过聚合级别限制，与聚合条件互斥
		return ErrInvalidCriteria
	}
	return nil
}

// SortDescriptor 排序描述
type SortDescriptor struct {
	Key        string // "time" / "stream" / "source"
	Descending bool
}
