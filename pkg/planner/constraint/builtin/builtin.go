package builtin

import (
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
)

// RegisterDefaultConstraints 注册全部内置约束
// UNKNOWN 没有对应规则，永远不会产生违规
func RegisterDefaultConstraints(manager *constraint.Manager) {
	// 硬约束
	manager.Register(NewNoSplitConstraint())

	// 软约束
	manager.Register(NewNoMixConstraint())
	manager.Register(NewDirectNoTouchConstraint())
	manager.Register(NewTempControlledConstraint())
	manager.Register(NewHazmatConstraint())
	manager.Register(NewStackLimitedConstraint())
	manager.Register(NewOverweightConstraint())
	manager.Register(NewAxleBalanceConstraint())
}

// NewDefaultManager 创建注册了内置约束的管理器
func NewDefaultManager() *constraint.Manager {
	m := constraint.NewManager()
	RegisterDefaultConstraints(m)
	return m
}

// Evaluate 使用内置约束评估一组托盘位置
func Evaluate(loads []*model.Load, placements []model.Placement, spec model.TrailerSpec) []model.Violation {
	ctx := constraint.NewContext(loads, placements, spec)
	return NewDefaultManager().Evaluate(ctx)
}
