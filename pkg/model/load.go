package model

import (
	"encoding/json"
	"strings"
)

// StatusAssigned 应用方案后写入的货物状态（引擎唯一会写入的状态值）
const StatusAssigned = "ASSIGNED"

// ConstraintKind 货物兼容性约束类型（封闭枚举）
type ConstraintKind string

const (
	KindNoMix          ConstraintKind = "NO_MIX"
	KindNoSplit        ConstraintKind = "NO_SPLIT"
	KindDirectNoTouch  ConstraintKind = "DIRECT_NO_TOUCH"
	KindTempControlled ConstraintKind = "TEMP_CONTROLLED"
	KindHazmat         ConstraintKind = "HAZMAT"
	KindStackLimited   ConstraintKind = "STACK_LIMITED"
	KindUnknown        ConstraintKind = "UNKNOWN"
)

// AllConstraintKinds 全部约束类型（声明顺序）
var AllConstraintKinds = []ConstraintKind{
	KindNoMix,
	KindNoSplit,
	KindDirectNoTouch,
	KindTempControlled,
	KindHazmat,
	KindStackLimited,
	KindUnknown,
}

// ParseConstraintKind 归一化约束值，无法识别的值返回 UNKNOWN
func ParseConstraintKind(s string) ConstraintKind {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(norm)
	switch norm {
	case "NO_MIX", "NOMIX":
		return KindNoMix
	case "NO_SPLIT", "NOSPLIT":
		return KindNoSplit
	case "DIRECT_NO_TOUCH", "DIRECTNOTOUCH", "NO_TOUCH":
		return KindDirectNoTouch
	case "TEMP_CONTROLLED", "TEMPCONTROLLED", "REEFER", "TEMP":
		return KindTempControlled
	case "HAZMAT", "HAZ_MAT", "HAZARDOUS":
		return KindHazmat
	case "STACK_LIMITED", "STACKLIMITED", "NO_STACK":
		return KindStackLimited
	default:
		return KindUnknown
	}
}

// UnmarshalJSON 未知值归一化为 UNKNOWN 而不是报错
func (k *ConstraintKind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*k = ParseConstraintKind(raw)
	return nil
}

// IsSegregated 是否需要隔离区（温控和危险品共用同一隔离区）
func (k ConstraintKind) IsSegregated() bool {
	return k == KindTempControlled || k == KindHazmat
}

// ConstraintSet 约束集合，nil 等价于空集合
type ConstraintSet []ConstraintKind

// Has 是否包含某约束
func (s ConstraintSet) Has(k ConstraintKind) bool {
	for _, c := range s {
		if c == k {
			return true
		}
	}
	return false
}

// HasSegregated 是否需要隔离区
func (s ConstraintSet) HasSegregated() bool {
	for _, c := range s {
		if c.IsSegregated() {
			return true
		}
	}
	return false
}

// Normalize 去重并保持首次出现顺序
func (s ConstraintSet) Normalize() ConstraintSet {
	if len(s) == 0 {
		return nil
	}
	seen := make(map[ConstraintKind]bool, len(s))
	out := make(ConstraintSet, 0, len(s))
	for _, c := range s {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// LoadAssignment 货物的挂车分配信息
type LoadAssignment struct {
	TrailerID   string `json:"trailer_id,omitempty"`
	TrailerUnit string `json:"trailer_unit,omitempty"`
}

// Load 货物（一组托盘）
type Load struct {
	ID              string          `json:"id"`
	LoadNumber      string          `json:"load_number,omitempty"`
	Pallets         int             `json:"pallets"`
	WeightLbs       float64         `json:"weight_lbs"`
	CubeFt          *float64        `json:"cube_ft,omitempty"`
	StopWindow      string          `json:"stop_window,omitempty"` // 不透明排序键
	Lane            string          `json:"lane,omitempty"`
	Constraints     ConstraintSet   `json:"constraints,omitempty"`
	DestinationCode string          `json:"destination_code,omitempty"`
	Assignment      *LoadAssignment `json:"assignment,omitempty"`
	Status          string          `json:"status,omitempty"`
}

// Clone 深拷贝
func (l *Load) Clone() *Load {
	if l == nil {
		return nil
	}
	c := *l
	if l.CubeFt != nil {
		v := *l.CubeFt
		c.CubeFt = &v
	}
	if l.Constraints != nil {
		c.Constraints = append(ConstraintSet(nil), l.Constraints...)
	}
	if l.Assignment != nil {
		a := *l.Assignment
		c.Assignment = &a
	}
	return &c
}

// IsAssigned 是否已分配挂车
func (l *Load) IsAssigned() bool {
	return l.Status == StatusAssigned || (l.Assignment != nil && l.Assignment.TrailerID != "")
}

// PalletWeight 平均每托盘重量
func (l *Load) PalletWeight() float64 {
	if l.Pallets <= 0 {
		return 0
	}
	return l.WeightLbs / float64(l.Pallets)
}

// Validate 托盘数与重量必须为正
func (l *Load) Validate() []string {
	var problems []string
	if strings.TrimSpace(l.ID) == "" {
		problems = append(problems, "id 不能为空")
	}
	if l.Pallets <= 0 {
		problems = append(problems, "pallets 必须大于0")
	}
	if l.WeightLbs <= 0 {
		problems = append(problems, "weight_lbs 必须大于0")
	}
	return problems
}
