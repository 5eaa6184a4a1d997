package builtin

import (
	"fmt"

	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
)

// AdjacencyConstraint 相邻约束（NO_MIX / DIRECT_NO_TOUCH）
// 带该约束的货物的托盘不得与其他货物的托盘相邻
type AdjacencyConstraint struct {
	*BaseConstraint
	fix string
}

// NewNoMixConstraint 创建 NO_MIX 约束（warning）
func NewNoMixConstraint() *AdjacencyConstraint {
	return &AdjacencyConstraint{
		BaseConstraint: NewBaseConstraint(
			"禁止混装",
			constraint.TypeNoMix,
			constraint.CategorySoft,
			model.SeverityWarning,
			model.KindNoMix,
		),
		fix: "在两批货物之间留出空托盘位，或将其移到其他列",
	}
}

// NewDirectNoTouchConstraint 创建 DIRECT_NO_TOUCH 约束（high）
func NewDirectNoTouchConstraint() *AdjacencyConstraint {
	return &AdjacencyConstraint{
		BaseConstraint: NewBaseConstraint(
			"禁止直接接触",
			constraint.TypeDirectNoTouch,
			constraint.CategorySoft,
			model.SeverityHigh,
			model.KindDirectNoTouch,
		),
		fix: "隔开相邻托盘或改用单独的挂车",
	}
}

// Evaluate 评估整个方案
func (c *AdjacencyConstraint) Evaluate(ctx *constraint.Context) []model.Violation {
	return evaluateEach(ctx, c.EvaluateLoad)
}

// EvaluateLoad 每个相邻的其他货物生成一条违规
func (c *AdjacencyConstraint) EvaluateLoad(ctx *constraint.Context, load *model.Load) []model.Violation {
	if !c.Applies(load) {
		return nil
	}

	others, pallets := ctx.TouchingLoads(load.ID)
	violations := make([]model.Violation, 0, len(others))
	for _, other := range others {
		violations = append(violations, c.CreateViolation(
			load.ID,
			pallets[other],
			model.ViolationAdjacency,
			fmt.Sprintf("货物 %s 要求 %s，但与货物 %s 相邻", load.ID, c.Kind(), other),
			c.fix,
		))
	}
	return violations
}
