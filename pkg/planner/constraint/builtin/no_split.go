package builtin

import (
	"fmt"
	"sort"

	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
)

// NoSplitConstraint 禁止拆分约束（硬约束）
// 货物的全部托盘必须在同一列的连续托盘位上，否则整批回滚
type NoSplitConstraint struct {
	*BaseConstraint
}

// NewNoSplitConstraint 创建禁止拆分约束
func NewNoSplitConstraint() *NoSplitConstraint {
	return &NoSplitConstraint{
		BaseConstraint: NewBaseConstraint(
			"禁止拆分",
			constraint.TypeNoSplit,
			constraint.CategoryHard,
			model.SeverityHigh,
			model.KindNoSplit,
		),
	}
}

// Evaluate 评估整个方案
func (c *NoSplitConstraint) Evaluate(ctx *constraint.Context) []model.Violation {
	return evaluateEach(ctx, c.EvaluateLoad)
}

// EvaluateLoad 未装载的货物不产生违规（排除原因由规划器记录）
func (c *NoSplitConstraint) EvaluateLoad(ctx *constraint.Context, load *model.Load) []model.Violation {
	if !c.Applies(load) {
		return nil
	}

	placements := ctx.LoadPlacements(load.ID)
	if len(placements) == 0 || IsContiguousBlock(placements, load.Pallets) {
		return nil
	}

	return []model.Violation{c.CreateViolation(
		load.ID,
		ctx.PalletIndices(load.ID),
		model.ViolationSplit,
		fmt.Sprintf("货物 %s 要求 NO_SPLIT，但 %d 个托盘未连续放在同一列", load.ID, load.Pallets),
		"释放同一列中足够的连续托盘位，或拆分为多个货物",
	)}
}

// IsContiguousBlock 托盘是否恰好 pallets 个，且在同一列的连续托盘位上
func IsContiguousBlock(placements []*model.Placement, pallets int) bool {
	if len(placements) != pallets || pallets == 0 {
		return false
	}

	lane := placements[0].LaneIndex
	slots := make([]int, 0, len(placements))
	for _, p := range placements {
		if p.LaneIndex != lane {
			return false
		}
		slots = append(slots, p.SlotIndex)
	}

	sort.Ints(slots)
	for i := 1; i < len(slots); i++ {
		if slots[i] != slots[i-1]+1 {
			return false
		}
	}
	return true
}
