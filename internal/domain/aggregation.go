package domain

import "fmt"

// Aggregation 聚合粒度
// 日历粒度 Minute..Year 全序可比；RunningTotal 与 of-period 族独立存在，
// 不参与日历粒度的粗细比较
type Aggregation int

const (
	// AggregationNone 原始数据（未聚合），视作最细粒度
	AggregationNone Aggregation = iota
	AggregationMinute
	AggregationHour
	AggregationDay
	AggregationMonth
	AggregationYear

	// AggregationRunningTotal 累计至今，不受范围限制
	AggregationRunningTotal

	// of-period 统计分桶族
	AggregationHourOfDay
	AggregationSeasonalHourOfDay
	AggregationDayOfWeek
	AggregationSeasonalDayOfWeek
)

// String 返回聚合粒度名称
func (a Aggregation) String() string {
	switch a {
	case AggregationNone:
		return "None"
	case AggregationMinute:
		return "Minute"
	case AggregationHour:
		return "Hour"
	case AggregationDay:
		return "Day"
	case AggregationMonth:
		return "Month"
	case AggregationYear:
		return "Year"
	case AggregationRunningTotal:
		return "RunningTotal"
	case AggregationHourOfDay:
		return "HourOfDay"
	case AggregationSeasonalHourOfDay:
		return "SeasonalHourOfDay"
	case AggregationDayOfWeek:
		return "DayOfWeek"
	case AggregationSeasonalDayOfWeek:
		return "SeasonalDayOfWeek"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// ParseAggregation 从名称解析聚合粒度
func ParseAggregation(s string) (Aggregation, error) {
	switch s {
	case "", "None":
		return AggregationNone, nil
	case "Minute":
		return AggregationMinute, nil
	case "Hour":
		return AggregationHour, nil
	case "Day":
		return AggregationDay, nil
	case "Month":
		return AggregationMonth, nil
	case "Year":
		return AggregationYear, nil
	case "RunningTotal":
		return AggregationRunningTotal, nil
	case "HourOfDay":
		return AggregationHourOfDay, nil
	case "SeasonalHourOfDay":
		return AggregationSeasonalHourOfDay, nil
	case "DayOfWeek":
		return AggregationDayOfWeek, nil
	case "SeasonalDayOfWeek":
		return AggregationSeasonalDayOfWeek, nil
	default:
		return 0, fmt.Errorf("unknown aggregation: %q", s)
	}
}

// IsCalendar 是否日历粒度（含 None，None 为原始数据即最细）
func (a Aggregation) IsCalendar() bool {
	return a >= AggregationNone && a <= AggregationYear
}

// IsOfPeriod 是否 of-period 统计分桶族
func (a Aggregation) IsOfPeriod() bool {
	switch a {
	case AggregationHourOfDay, AggregationSeasonalHourOfDay,
		AggregationDayOfWeek, AggregationSeasonalDayOfWeek:
		return true
	}
	return false
}

// FinerThan 日历粒度粗细比较；非日历粒度（RunningTotal、of-period）不可比，恒为 false
func (a Aggregation) FinerThan(other Aggregation) bool {
	if !a.IsCalendar() || !other.IsCalendar() {
		return false
	}
	return a < other
}
