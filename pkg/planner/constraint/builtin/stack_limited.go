package builtin

import (
	"fmt"
	"sort"

	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
)

// StackLimitedConstraint 限制堆叠约束
// 引擎从不重复占用托盘位，因此该约束限制同一货物每列最多一个托盘
type StackLimitedConstraint struct {
	*BaseConstraint
}

// NewStackLimitedConstraint 创建限制堆叠约束
func NewStackLimitedConstraint() *StackLimitedConstraint {
	return &StackLimitedConstraint{
		BaseConstraint: NewBaseConstraint(
			"限制堆叠",
			constraint.TypeStackLimited,
			constraint.CategorySoft,
			model.SeverityLow,
			model.KindStackLimited,
		),
	}
}

// Evaluate 评估整个方案
func (c *StackLimitedConstraint) Evaluate(ctx *constraint.Context) []model.Violation {
	return evaluateEach(ctx, c.EvaluateLoad)
}

// EvaluateLoad 列出与同货物其他托盘同列的全部托盘
func (c *StackLimitedConstraint) EvaluateLoad(ctx *constraint.Context, load *model.Load) []model.Violation {
	if !c.Applies(load) {
		return nil
	}

	byLane := make(map[int][]int)
	for _, p := range ctx.LoadPlacements(load.ID) {
		byLane[p.LaneIndex] = append(byLane[p.LaneIndex], p.PalletIndex)
	}

	var pallets []int
	crowded := 0
	for _, idxs := range byLane {
		if len(idxs) > 1 {
			crowded++
			pallets = append(pallets, idxs...)
		}
	}
	if crowded == 0 {
		return nil
	}
	sort.Ints(pallets)

	return []model.Violation{c.CreateViolation(
		load.ID,
		pallets,
		model.ViolationStacking,
		fmt.Sprintf("货物 %s 要求 STACK_LIMITED，但有 %d 列放置了多个托盘", load.ID, crowded),
		"减少托盘数量或使用列数更多的挂车",
	)}
}
