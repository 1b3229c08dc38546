package service

import (
	"sort"
	"time"

	"gridstream-data/internal/domain"

	"github.com/google/uuid"
)

// ZoneRange 单一时区的子范围
// Start/End 为该时区本地日历边界对应的 UTC 瞬时
type ZoneRange struct {
	Zone      string
	Start     time.Time
	End       time.Time
	StreamIDs []uuid.UUID
}

// PartitionByZone 将异构时区的流集合按时区分组，并把统一的 UTC 范围
// 重表达为各时区的本地日历边界
// 日/月聚合必须对齐本地零点/月初，否则边界 datum 会落进错误的日历桶
func PartitionByZone(streams []*domain.Stream, start, end time.Time, agg domain.Aggregation) []ZoneRange {
	byZone := make(map[string][]uuid.UUID)
	for _, s := range streams {
		zone := s.TimeZone
		if zone == "" {
			zone = "UTC"
		}
		byZone[zone] = append(byZone[zone], s.StreamID)
	}

	zones := make([]string, 0, len(byZone))
	for z := range byZone {
		zones = append(zones, z)
	}
	sort.Strings(zones)

	out := make([]ZoneRange, 0, len(zones))
	for _, zone := range zones {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			loc = time.UTC
		}
		out = append(out, ZoneRange{
			Zone:      zone,
			Start:     floorLocal(start, loc, agg),
			End:       ceilLocal(end, loc, agg),
			StreamIDs: byZone[zone],
		})
	}
	return out
}

// floorLocal 将瞬时向下对齐到时区本地的日历边界
func floorLocal(t time.Time, loc *time.Location, agg domain.Aggregation) time.Time {
	lt := t.In(loc)
	switch agg {
	case domain.AggregationMinute:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute(), 0, 0, loc)
	case domain.AggregationHour, domain.AggregationHourOfDay, domain.AggregationSeasonalHourOfDay:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
	case domain.AggregationDay, domain.AggregationDayOfWeek, domain.AggregationSeasonalDayOfWeek:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	case domain.AggregationMonth:
		return time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc)
	case domain.AggregationYear:
		return time.Date(lt.Year(), 1, 1, 0, 0, 0, 0, loc)
	default:
		return t
	}
}

// ceilLocal 将瞬时向上对齐到时区本地的日历边界（已对齐时原样返回）
func ceilLocal(t time.Time, loc *time.Location, agg domain.Aggregation) time.Time {
	floored := floorLocal(t, loc, agg)
	if floored.Equal(t) {
		return t
	}
	lt := floored.In(loc)
	switch agg {
	case domain.AggregationMinute:
		return lt.Add(time.Minute)
	case domain.AggregationHour, domain.AggregationHourOfDay, domain.AggregationSeasonalHourOfDay:
		return lt.Add(time.Hour)
	case domain.AggregationDay, domain.AggregationDayOfWeek, domain.AggregationSeasonalDayOfWeek:
		return lt.AddDate(0, 0, 1)
	case domain.AggregationMonth:
		return lt.AddDate(0, 1, 0)
	case domain.AggregationYear:
		return lt.AddDate(1, 0, 0)
	default:
		return t
	}
}
