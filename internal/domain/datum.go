package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Datum 一条时序读数
// 复合键 (StreamID, Timestamp)；同键重写为整行覆盖（幂等 upsert），不产生第二版本
type Datum struct {
	StreamID  uuid.UUID
	Timestamp time.Time

	// 数值按位置与流的属性名列表对齐；nil 槽位表示该属性本条无值
	Instantaneous []*float64
	Accumulating  []*float64
	Status        []*string
	Tags          []string

	Received time.Time
}

// PropertyCounts 返回非空的 instantaneous / accumulating 值个数（审计计数用）
func (d *Datum) PropertyCounts() (inst int, accu int) {
	for _, v := range d.Instantaneous {
		if v != nil {
			inst++
		}
	}
	for _, v := range d.Accumulating {
		if v != nil {
			accu++
		}
	}
	return inst, accu
}

// DatumAuxiliaryType 辅助记录类型
type DatumAuxiliaryType string

const (
	// AuxiliaryReset accumulating 计量表复位/更换事件
	AuxiliaryReset DatumAuxiliaryType = "Reset"
)

// DatumAuxiliary accumulating 数值的修正事件
// 历史 accumulating 读数不允许改写，修正以独立记录表达，键 (StreamID, Timestamp, Type)
type DatumAuxiliary struct {
	StreamID  uuid.UUID
	Timestamp time.Time
	Type      DatumAuxiliaryType

	Updated time.Time
	Notes   string

	// 修正前/后的样本快照
	Final json.RawMessage
	Start json.RawMessage
}

// AuxiliaryKey 辅助记录的复合键（move 操作的定位参数）
type AuxiliaryKey struct {
	StreamID  uuid.UUID
	Timestamp time.Time
	Type      DatumAuxiliaryType
}

// AggregateDatum 一个聚合桶的汇总读数
// Timestamp 为桶起点（日/月桶按流时区的本地日历边界）
type AggregateDatum struct {
	StreamID    uuid.UUID
	Timestamp   time.Time
	Aggregation Aggregation

	// instantaneous 槽位的平均 / 最小 / 最大
	Instantaneous []*float64
	Minimum       []*float64
	Maximum       []*float64

	// accumulating 槽位的桶内增量
	Accumulating []*float64
}
