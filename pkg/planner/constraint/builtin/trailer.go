package builtin

import (
	"fmt"

	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
	"github.com/paiban/loadplan/pkg/planner/geometry"
)

// OverweightConstraint 超重约束（整车）
type OverweightConstraint struct {
	*BaseConstraint
}

// NewOverweightConstraint 创建超重约束
func NewOverweightConstraint() *OverweightConstraint {
	return &OverweightConstraint{
		BaseConstraint: NewBaseConstraint(
			"法定重量",
			constraint.TypeOverweight,
			constraint.CategorySoft,
			model.SeverityCritical,
			"",
		),
	}
}

// Evaluate 总重超过法定重量时记录违规
func (c *OverweightConstraint) Evaluate(ctx *constraint.Context) []model.Violation {
	total := ctx.TotalWeight()
	if total <= ctx.Spec.LegalWeightLbs {
		return nil
	}
	return []model.Violation{c.CreateViolation(
		"",
		nil,
		model.ViolationOverweight,
		fmt.Sprintf("总重 %.2f 磅超过法定上限 %.2f 磅", total, ctx.Spec.LegalWeightLbs),
		"移除部分货物或改用载重更大的挂车",
	)}
}

// AxleBalanceConstraint 轴荷平衡约束（整车，仅 BAD 时记录）
type AxleBalanceConstraint struct {
	*BaseConstraint
}

// NewAxleBalanceConstraint 创建轴荷平衡约束
func NewAxleBalanceConstraint() *AxleBalanceConstraint {
	return &AxleBalanceConstraint{
		BaseConstraint: NewBaseConstraint(
			"轴荷平衡",
			constraint.TypeAxleBalance,
			constraint.CategorySoft,
			model.SeverityWarning,
			"",
		),
	}
}

// Evaluate 评估整车轴荷
func (c *AxleBalanceConstraint) Evaluate(ctx *constraint.Context) []model.Violation {
	if len(ctx.Placements) == 0 {
		return nil
	}
	class, pct := geometry.AxleBalance(ctx.Spec, ctx.Placements)
	if class != model.AxleBad {
		return nil
	}

	fix := "将较重的托盘向车尾移动"
	if pct < ctx.Spec.TargetForwardPct {
		fix = "将较重的托盘向车头移动"
	}
	return []model.Violation{c.CreateViolation(
		"",
		nil,
		model.ViolationAxle,
		fmt.Sprintf("驱动轴承重占比 %.1f%%，偏离目标 %.1f%%", pct, ctx.Spec.TargetForwardPct),
		fix,
	)}
}
