// Package scorer 计算装载方案摘要
package scorer

import (
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/geometry"
)

// Score 由托盘位置和违规计算方案摘要
// 只依赖输入参数，loads 仅用于统计实际装载的货物数
func Score(loads []*model.Load, placements []model.Placement, spec model.TrailerSpec, violations []model.Violation) model.Summary {
	var total float64
	for i := range placements {
		total += placements[i].WeightLbs
	}

	class, forwardPct := geometry.AxleBalance(spec, placements)

	summary := model.Summary{
		TotalWeightLbs:       total,
		LegalWeightLbs:       spec.LegalWeightLbs,
		Overweight:           total > spec.LegalWeightLbs,
		AxleBalance:          class,
		ForwardPct:           forwardPct,
		TargetForwardPct:     spec.TargetForwardPct,
		ViolationsBySeverity: CountBySeverity(violations),
		PlacedPallets:        len(placements),
		PlacedLoads:          countPlacedLoads(loads, placements),
	}
	if spec.SlotCount > 0 {
		summary.UtilizationPct = float64(len(placements)) * 100 / float64(spec.SlotCount)
	}
	return summary
}

// CountBySeverity 按严重程度统计违规，四个级别都有键
func CountBySeverity(violations []model.Violation) map[model.Severity]int {
	counts := make(map[model.Severity]int, len(model.AllSeverities))
	for _, s := range model.AllSeverities {
		counts[s] = 0
	}
	for i := range violations {
		counts[violations[i].Severity]++
	}
	return counts
}

// countPlacedLoads 统计有托盘的货物数；loads 为空时按托盘中的货物ID统计
func countPlacedLoads(loads []*model.Load, placements []model.Placement) int {
	ids := model.DistinctLoadIDs(placements)
	if len(loads) == 0 {
		return len(ids)
	}
	known := make(map[string]bool, len(loads))
	for _, l := range loads {
		known[l.ID] = true
	}
	n := 0
	for _, id := range ids {
		if known[id] {
			n++
		}
	}
	return n
}

// Notes 生成方案提示
func Notes(summary model.Summary) []string {
	var notes []string
	if summary.Overweight {
		notes = append(notes, "总重超过法定重量")
	}
	switch summary.AxleBalance {
	case model.AxleBad:
		notes = append(notes, "轴荷严重失衡")
	case model.AxleWarn:
		notes = append(notes, "轴荷偏离目标，建议调整")
	}
	if n := summary.ViolationsBySeverity[model.SeverityCritical]; n > 0 {
		notes = append(notes, "存在严重级别违规")
	}
	if n := summary.ViolationsBySeverity[model.SeverityHigh]; n > 0 {
		notes = append(notes, "存在高级别违规")
	}
	if len(notes) == 0 {
		notes = append(notes, "通过基础检查")
	}
	return notes
}
