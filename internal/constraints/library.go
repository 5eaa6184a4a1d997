// Package constraints 约束目录，供前端展示每种货物约束的含义与后果
package constraints

import (
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
	"github.com/paiban/loadplan/pkg/planner/constraint/builtin"
)

// ConstraintParam 规则读取的挂车规格参数
type ConstraintParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // int, float, array
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
}

// ConstraintDefinition 约束定义
type ConstraintDefinition struct {
	Name          string               `json:"name"` // 规则标识
	DisplayName   string               `json:"display_name"`
	Kind          model.ConstraintKind `json:"kind,omitempty"` // 触发该规则的货物约束，整车规则为空
	Type          string               `json:"type"`           // hard 违反时回滚, soft 仅记录
	Severity      model.Severity       `json:"severity,omitempty"`
	ViolationType model.ViolationType  `json:"violation_type,omitempty"`
	Scope         string               `json:"scope"` // load / trailer
	Description   string               `json:"description"`
	Params        []ConstraintParam    `json:"params"`
}

// LibraryResponse 约束库响应
type LibraryResponse struct {
	Library []ConstraintDefinition `json:"library"`
}

type descriptor struct {
	displayName   string
	violationType model.ViolationType
	description   string
	params        []ConstraintParam
}

var descriptors = map[constraint.Type]descriptor{
	constraint.TypeNoSplit: {
		displayName:   "不可拆分",
		violationType: model.ViolationSplit,
		description:   "全部托盘必须放在同一列的连续托盘位上，否则整票不装。剩余位置足够但不连续时同样排除。",
	},
	constraint.TypeNoMix: {
		displayName:   "不可混装",
		violationType: model.ViolationAdjacency,
		description:   "其他货物的托盘不得与该货物相邻（同列前后或同位左右）。违反时仍然装载，只记录警告。",
	},
	constraint.TypeDirectNoTouch: {
		displayName:   "禁止接触",
		violationType: model.ViolationAdjacency,
		description:   "任何其他货物的托盘都不得与该货物相邻。违反时仍然装载，记录高级别违规。",
	},
	constraint.TypeTempControlled: {
		displayName:   "温控",
		violationType: model.ViolationCompliance,
		description:   "必须放在连续的隔离区内。挂车没有配置隔离列时照常装载，但记录严重合规违规，需要人工确认。",
		params: []ConstraintParam{
			{Name: "segregated_lanes", Type: "array", Description: "隔离区所在列", Default: "[]"},
		},
	},
	constraint.TypeHazmat: {
		displayName:   "危险品",
		violationType: model.ViolationCompliance,
		description:   "与温控共用隔离区规则。挂车没有配置隔离列时照常装载，但记录严重合规违规。",
		params: []ConstraintParam{
			{Name: "segregated_lanes", Type: "array", Description: "隔离区所在列", Default: "[]"},
		},
	},
	constraint.TypeStackLimited: {
		displayName:   "限制堆叠",
		violationType: model.ViolationStacking,
		description:   "每列最多放该货物的一个托盘。",
	},
	constraint.TypeOverweight: {
		displayName:   "超重",
		violationType: model.ViolationOverweight,
		description:   "托盘总重超过挂车法定重量。",
		params: []ConstraintParam{
			{Name: "legal_weight_lbs", Type: "float", Description: "法定重量（磅）", Default: "44000"},
		},
	},
	constraint.TypeAxleBalance: {
		displayName:   "轴荷平衡",
		violationType: model.ViolationAxle,
		description:   "前轴承重占比偏离目标超过 15 个百分点。偏离 7.5 个百分点以内为良好。",
		params: []ConstraintParam{
			{Name: "target_forward_pct", Type: "float", Description: "前轴目标承重占比（%）", Default: "50"},
			{Name: "drive_axle_x", Type: "float", Description: "驱动轴位置（米）"},
			{Name: "trailer_axle_x", Type: "float", Description: "挂车轴位置（米）"},
		},
	},
}

// GetLibrary 获取完整的约束库，顺序与规则评估顺序一致，最后是 UNKNOWN
func GetLibrary() []ConstraintDefinition {
	manager := builtin.NewDefaultManager()

	library := make([]ConstraintDefinition, 0, manager.Count()+1)
	for _, c := range manager.GetAll() {
		d := descriptors[c.Type()]
		scope := "load"
		if c.Kind() == "" {
			scope = "trailer"
		}
		params := d.params
		if params == nil {
			params = []ConstraintParam{}
		}
		library = append(library, ConstraintDefinition{
			Name:          string(c.Type()),
			DisplayName:   d.displayName,
			Kind:          c.Kind(),
			Type:          string(c.Category()),
			Severity:      c.Severity(),
			ViolationType: d.violationType,
			Scope:         scope,
			Description:   d.description,
			Params:        params,
		})
	}

	library = append(library, ConstraintDefinition{
		Name:        "unknown",
		DisplayName: "未识别",
		Kind:        model.KindUnknown,
		Type:        string(constraint.CategorySoft),
		Scope:       "load",
		Description: "导入时无法识别的约束值。保留在货物上但不参与任何检查。",
		Params:      []ConstraintParam{},
	})
	return library
}

// GetByKind 按货物约束类型查找
func GetByKind(kind model.ConstraintKind) []ConstraintDefinition {
	var out []ConstraintDefinition
	for _, d := range GetLibrary() {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
