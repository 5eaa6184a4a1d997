package model

// PalletDims 托盘尺寸（米）
type PalletDims struct {
	LengthM float64 `json:"length_m"`
	WidthM  float64 `json:"width_m"`
	HeightM float64 `json:"height_m"`
}

// Placement 单个托盘在挂车上的位置
type Placement struct {
	LoadID          string      `json:"load_id"`
	PalletIndex     int         `json:"pallet_index"` // 货物内从0开始
	SlotIndex       int         `json:"slot_index"`   // 沿车长方向的位置
	LaneIndex       int         `json:"lane_index"`
	WeightLbs       float64     `json:"weight_lbs"`
	Dims            *PalletDims `json:"dims,omitempty"`
	SequenceIndex   *int        `json:"sequence_index,omitempty"` // 装卸顺序
	DestinationCode string      `json:"destination_code,omitempty"`
	StopWindow      string      `json:"stop_window,omitempty"`
}

// Cell 托盘位坐标
type Cell struct {
	Lane int `json:"lane"`
	Slot int `json:"slot"`
}

// Cell 返回托盘所在坐标
func (p *Placement) Cell() Cell {
	return Cell{Lane: p.LaneIndex, Slot: p.SlotIndex}
}

// ViolationType 违规类别（机器可读）
type ViolationType string

const (
	ViolationCapacity   ViolationType = "capacity"
	ViolationSplit      ViolationType = "split"
	ViolationAdjacency  ViolationType = "adjacency"
	ViolationCompliance ViolationType = "compliance"
	ViolationStacking   ViolationType = "stacking"
	ViolationOverweight ViolationType = "overweight"
	ViolationAxle       ViolationType = "axle"
)

// Violation 约束未满足的提示信息（建议性，不阻止装载）
type Violation struct {
	LoadID        string        `json:"load_id,omitempty"`
	PalletIndices []int         `json:"pallet_indices,omitempty"`
	Severity      Severity      `json:"severity"`
	Reason        string        `json:"reason"`
	SuggestedFix  string        `json:"suggested_fix,omitempty"`
	Type          ViolationType `json:"type"`
}

// IsBlocking 是否为高或严重级别
func (v *Violation) IsBlocking() bool {
	return v.Severity.AtLeast(SeverityHigh)
}

// CountBlocking 统计高/严重级别违规数
func CountBlocking(violations []Violation) int {
	n := 0
	for i := range violations {
		if violations[i].IsBlocking() {
			n++
		}
	}
	return n
}
