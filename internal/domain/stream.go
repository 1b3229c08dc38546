package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ObjectKind 流归属对象类型：节点（设备）或位置（站点）
type ObjectKind byte

const (
	ObjectKindNode     ObjectKind = 'n'
	ObjectKindLocation ObjectKind = 'l'
)

// String 返回对象类型名称
func (k ObjectKind) String() string {
	switch k {
	case ObjectKindNode:
		return "node"
	case ObjectKindLocation:
		return "location"
	default:
		return fmt.Sprintf("ObjectKind(%c)", byte(k))
	}
}

// ParseObjectKind 从存储字符解析对象类型
func ParseObjectKind(s string) (ObjectKind, error) {
	switch s {
	case "n", "node":
		return ObjectKindNode, nil
	case "l", "location":
		return ObjectKindLocation, nil
	default:
		return 0, fmt.Errorf("unknown object kind: %q", s)
	}
}

// StreamIdentity 流的自然键：(kind, object_id, source_id) 唯一
type StreamIdentity struct {
	Kind     ObjectKind
	ObjectID int64
	SourceID string
}

// Stream 遥测流元数据
// (Kind, ObjectID, SourceID) 唯一解析到一个 StreamID，StreamID 一经生成不变
type Stream struct {
	StreamID uuid.UUID
	Kind     ObjectKind
	ObjectID int64
	SourceID string

	// 属性名列表，datum 数值按位置与之对齐
	NamesInstantaneous []string
	NamesAccumulating  []string
	NamesStatus        []string

	// 自由元数据文档（JSONB）
	Metadata map[string]interface{}

	// 位置信息（可选）
	Country    string
	Region     string
	PostalCode string
	Latitude   *float64
	Longitude  *float64
	Elevation  *float64

	// IANA 时区ID，日/月聚合按此时区的本地日历边界计算
	TimeZone string

	CreatedAt time.Time
}

// Identity 返回流的自然键
func (s *Stream) Identity() StreamIdentity {
	return StreamIdentity{Kind: s.Kind, ObjectID: s.ObjectID, SourceID: s.SourceID}
}

// Location 解析流时区，解析失败回退 UTC
func (s *Stream) Location() *time.Location {
	if s.TimeZone != "" {
		if loc, err := time.LoadLocation(s.TimeZone); err == nil {
			return loc
		}
	}
	return time.UTC
}
