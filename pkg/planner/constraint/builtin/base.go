// Package builtin 提供内置装载约束实现
package builtin

import (
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
)

// BaseConstraint 约束基类
type BaseConstraint struct {
	name     string
	typ      constraint.Type
	category constraint.Category
	severity model.Severity
	kind     model.ConstraintKind
}

// NewBaseConstraint 创建基础约束
func NewBaseConstraint(name string, typ constraint.Type, cat constraint.Category, sev model.Severity, kind model.ConstraintKind) *BaseConstraint {
	return &BaseConstraint{
		name:     name,
		typ:      typ,
		category: cat,
		severity: sev,
		kind:     kind,
	}
}

// Name 返回约束名称
func (c *BaseConstraint) Name() string { return c.name }

// Type 返回规则标识
func (c *BaseConstraint) Type() constraint.Type { return c.typ }

// Category 返回约束类别
func (c *BaseConstraint) Category() constraint.Category { return c.category }

// Severity 返回严重程度
func (c *BaseConstraint) Severity() model.Severity { return c.severity }

// Kind 返回触发的货物约束类型
func (c *BaseConstraint) Kind() model.ConstraintKind { return c.kind }

// Applies 货物是否带有触发该规则的约束
func (c *BaseConstraint) Applies(load *model.Load) bool {
	return c.kind != "" && load != nil && load.Constraints.Has(c.kind)
}

// CreateViolation 创建违规
func (c *BaseConstraint) CreateViolation(loadID string, pallets []int, vt model.ViolationType, reason, fix string) model.Violation {
	return model.Violation{
		LoadID:        loadID,
		PalletIndices: pallets,
		Severity:      c.severity,
		Reason:        reason,
		SuggestedFix:  fix,
		Type:          vt,
	}
}

// Evaluate 默认评估实现（子类需覆盖）
func (c *BaseConstraint) Evaluate(ctx *constraint.Context) []model.Violation {
	return nil
}

// EvaluateLoad 默认货物评估实现（子类需覆盖）
func (c *BaseConstraint) EvaluateLoad(ctx *constraint.Context, load *model.Load) []model.Violation {
	return nil
}

// evaluateEach 按货物顺序逐个评估
func evaluateEach(ctx *constraint.Context, fn func(*constraint.Context, *model.Load) []model.Violation) []model.Violation {
	var violations []model.Violation
	for _, l := range ctx.Loads {
		violations = append(violations, fn(ctx, l)...)
	}
	return violations
}
