package builtin

import (
	"fmt"

	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
)

// SegregationConstraint 隔离区约束（TEMP_CONTROLLED / HAZMAT）
//
// 挂车未配置隔离列时，每个此类货物都记录一条严重违规但照常装载，
// 由人工确认挂车是否具备相应资质；配置了隔离列时，检查托盘是否
// 全部位于隔离列内且彼此连通。
type SegregationConstraint struct {
	*BaseConstraint
}

// NewTempControlledConstraint 创建温控约束
func NewTempControlledConstraint() *SegregationConstraint {
	return &SegregationConstraint{
		BaseConstraint: NewBaseConstraint(
			"温控隔离",
			constraint.TypeTempControlled,
			constraint.CategorySoft,
			model.SeverityCritical,
			model.KindTempControlled,
		),
	}
}

// NewHazmatConstraint 创建危险品约束
func NewHazmatConstraint() *SegregationConstraint {
	return &SegregationConstraint{
		BaseConstraint: NewBaseConstraint(
			"危险品隔离",
			constraint.TypeHazmat,
			constraint.CategorySoft,
			model.SeverityCritical,
			model.KindHazmat,
		),
	}
}

// Evaluate 评估整个方案
func (c *SegregationConstraint) Evaluate(ctx *constraint.Context) []model.Violation {
	return evaluateEach(ctx, c.EvaluateLoad)
}

// EvaluateLoad 评估单个货物
func (c *SegregationConstraint) EvaluateLoad(ctx *constraint.Context, load *model.Load) []model.Violation {
	if !c.Applies(load) {
		return nil
	}
	placements := ctx.LoadPlacements(load.ID)
	if len(placements) == 0 {
		return nil
	}

	if !ctx.Spec.HasSegregatedZone() {
		return []model.Violation{c.CreateViolation(
			load.ID,
			ctx.PalletIndices(load.ID),
			model.ViolationCompliance,
			fmt.Sprintf("货物 %s 为 %s，但挂车未配置隔离区", load.ID, c.Kind()),
			"改用具备资质的挂车，或在挂车规格中配置 segregated_lanes",
		)}
	}

	var outside []int
	for _, p := range placements {
		if !ctx.Spec.IsSegregatedLane(p.LaneIndex) {
			outside = append(outside, p.PalletIndex)
		}
	}
	if len(outside) > 0 {
		return []model.Violation{c.CreateViolation(
			load.ID,
			outside,
			model.ViolationCompliance,
			fmt.Sprintf("货物 %s 为 %s，有 %d 个托盘位于隔离区外", load.ID, c.Kind(), len(outside)),
			"将托盘移入隔离列，或减少隔离区内的其他货物",
		)}
	}

	if !isConnected(placements) {
		return []model.Violation{c.CreateViolation(
			load.ID,
			ctx.PalletIndices(load.ID),
			model.ViolationCompliance,
			fmt.Sprintf("货物 %s 为 %s，隔离区内的托盘不连续", load.ID, c.Kind()),
			"将托盘集中放在隔离区内相邻的托盘位",
		)}
	}
	return nil
}

// isConnected 托盘是否在四邻域意义下连通
func isConnected(placements []*model.Placement) bool {
	if len(placements) <= 1 {
		return true
	}
	cells := make(map[model.Cell]bool, len(placements))
	for _, p := range placements {
		cells[p.Cell()] = true
	}

	start := placements[0].Cell()
	visited := map[model.Cell]bool{start: true}
	queue := []model.Cell{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range []model.Cell{
			{Lane: cur.Lane, Slot: cur.Slot - 1},
			{Lane: cur.Lane, Slot: cur.Slot + 1},
			{Lane: cur.Lane - 1, Slot: cur.Slot},
			{Lane: cur.Lane + 1, Slot: cur.Slot},
		} {
			if cells[n] && !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(visited) == len(cells)
}
