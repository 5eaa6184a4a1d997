package model

// TrailerSpec 挂车规格（归一化后每个字段都有值）
type TrailerSpec struct {
	LengthM          float64 `json:"length_m" yaml:"length_m"`
	WidthM           float64 `json:"width_m" yaml:"width_m"`
	HeightM          float64 `json:"height_m" yaml:"height_m"`
	LaneCount        int     `json:"lane_count" yaml:"lane_count"`
	SlotCount        int     `json:"slot_count" yaml:"slot_count"` // 托盘位总数，装载硬上限
	LegalWeightLbs   float64 `json:"legal_weight_lbs" yaml:"legal_weight_lbs"`
	DriveAxleX       float64 `json:"drive_axle_x" yaml:"drive_axle_x"`     // 驱动轴纵向位置（米）
	TrailerAxleX     float64 `json:"trailer_axle_x" yaml:"trailer_axle_x"` // 挂车轴纵向位置（米）
	TargetForwardPct float64 `json:"target_forward_pct" yaml:"target_forward_pct"`
	SegregatedLanes  []int   `json:"segregated_lanes" yaml:"segregated_lanes"` // 温控/危险品隔离列
}

// SlotsPerLane 每列托盘位数
func (s TrailerSpec) SlotsPerLane() int {
	if s.LaneCount <= 0 {
		return s.SlotCount
	}
	return (s.SlotCount + s.LaneCount - 1) / s.LaneCount
}

// HasSegregatedZone 是否配置了隔离区
func (s TrailerSpec) HasSegregatedZone() bool {
	return len(s.SegregatedLanes) > 0
}

// IsSegregatedLane 某列是否属于隔离区
func (s TrailerSpec) IsSegregatedLane(lane int) bool {
	for _, l := range s.SegregatedLanes {
		if l == lane {
			return true
		}
	}
	return false
}

// Clone 拷贝（隔离列切片独立）
func (s TrailerSpec) Clone() TrailerSpec {
	c := s
	if s.SegregatedLanes != nil {
		c.SegregatedLanes = make([]int, len(s.SegregatedLanes))
		copy(c.SegregatedLanes, s.SegregatedLanes)
	}
	return c
}

// Patch 转换为完整的部分规格，用于再次归一化
func (s TrailerSpec) Patch() TrailerSpecPatch {
	c := s.Clone()
	return TrailerSpecPatch{
		LengthM:          &c.LengthM,
		WidthM:           &c.WidthM,
		HeightM:          &c.HeightM,
		LaneCount:        &c.LaneCount,
		SlotCount:        &c.SlotCount,
		LegalWeightLbs:   &c.LegalWeightLbs,
		DriveAxleX:       &c.DriveAxleX,
		TrailerAxleX:     &c.TrailerAxleX,
		TargetForwardPct: &c.TargetForwardPct,
		SegregatedLanes:  c.SegregatedLanes,
	}
}

// TrailerSpecPatch 部分挂车规格，nil 字段表示缺失
type TrailerSpecPatch struct {
	LengthM          *float64 `json:"length_m,omitempty" yaml:"length_m,omitempty"`
	WidthM           *float64 `json:"width_m,omitempty" yaml:"width_m,omitempty"`
	HeightM          *float64 `json:"height_m,omitempty" yaml:"height_m,omitempty"`
	LaneCount        *int     `json:"lane_count,omitempty" yaml:"lane_count,omitempty"`
	SlotCount        *int     `json:"slot_count,omitempty" yaml:"slot_count,omitempty"`
	LegalWeightLbs   *float64 `json:"legal_weight_lbs,omitempty" yaml:"legal_weight_lbs,omitempty"`
	DriveAxleX       *float64 `json:"drive_axle_x,omitempty" yaml:"drive_axle_x,omitempty"`
	TrailerAxleX     *float64 `json:"trailer_axle_x,omitempty" yaml:"trailer_axle_x,omitempty"`
	TargetForwardPct *float64 `json:"target_forward_pct,omitempty" yaml:"target_forward_pct,omitempty"`
	SegregatedLanes  []int    `json:"segregated_lanes,omitempty" yaml:"segregated_lanes,omitempty"`
}

// IsEmpty 是否没有任何字段
func (p *TrailerSpecPatch) IsEmpty() bool {
	return p == nil || (p.LengthM == nil && p.WidthM == nil && p.HeightM == nil &&
		p.LaneCount == nil && p.SlotCount == nil && p.LegalWeightLbs == nil &&
		p.DriveAxleX == nil && p.TrailerAxleX == nil && p.TargetForwardPct == nil &&
		p.SegregatedLanes == nil)
}

// Overlay 用 top 中存在的字段覆盖 p，返回新的部分规格
func (p *TrailerSpecPatch) Overlay(top *TrailerSpecPatch) *TrailerSpecPatch {
	out := &TrailerSpecPatch{}
	if p != nil {
		*out = *p
	}
	if top == nil {
		return out
	}
	if top.LengthM != nil {
		out.LengthM = top.LengthM
	}
	if top.WidthM != nil {
		out.WidthM = top.WidthM
	}
	if top.HeightM != nil {
		out.HeightM = top.HeightM
	}
	if top.LaneCount != nil {
		out.LaneCount = top.LaneCount
	}
	if top.SlotCount != nil {
		out.SlotCount = top.SlotCount
	}
	if top.LegalWeightLbs != nil {
		out.LegalWeightLbs = top.LegalWeightLbs
	}
	if top.DriveAxleX != nil {
		out.DriveAxleX = top.DriveAxleX
	}
	if top.TrailerAxleX != nil {
		out.TrailerAxleX = top.TrailerAxleX
	}
	if top.TargetForwardPct != nil {
		out.TargetForwardPct = top.TargetForwardPct
	}
	if top.SegregatedLanes != nil {
		out.SegregatedLanes = top.SegregatedLanes
	}
	return out
}

// Trailer 挂车
type Trailer struct {
	ID     string            `json:"id"`
	Unit   string            `json:"unit,omitempty"` // 车号
	Name   string            `json:"name,omitempty"`
	Status string            `json:"status,omitempty"`
	Spec   *TrailerSpecPatch `json:"spec,omitempty"` // 覆盖组织默认规格
}

// Clone 拷贝
func (t *Trailer) Clone() *Trailer {
	if t == nil {
		return nil
	}
	c := *t
	if t.Spec != nil {
		p := *t.Spec
		if t.Spec.SegregatedLanes != nil {
			p.SegregatedLanes = make([]int, len(t.Spec.SegregatedLanes))
			copy(p.SegregatedLanes, t.Spec.SegregatedLanes)
		}
		c.Spec = &p
	}
	return &c
}
