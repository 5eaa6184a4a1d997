package constraint

import (
	"sort"
	"sync"

	"github.com/paiban/loadplan/pkg/logger"
	"github.com/paiban/loadplan/pkg/model"
)

// Manager 约束管理器
type Manager struct {
	constraints []Constraint
	mu          sync.RWMutex
	logger      *logger.PlannerLogger
}

// NewManager 创建约束管理器
func NewManager() *Manager {
	return &Manager{
		constraints: make([]Constraint, 0),
		logger:      logger.NewPlannerLogger(),
	}
}

// Register 注册约束，同类型约束会被替换
func (m *Manager) Register(c Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.constraints {
		if existing.Type() == c.Type() {
			m.constraints[i] = c
			return
		}
	}

	m.constraints = append(m.constraints, c)

	// 硬约束在前，同类别保持注册顺序
	sort.SliceStable(m.constraints, func(i, j int) bool {
		ci, cj := m.constraints[i], m.constraints[j]
		return ci.Category() == CategoryHard && cj.Category() != CategoryHard
	})
}

// GetAll 获取所有约束
func (m *Manager) GetAll() []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Constraint, len(m.constraints))
	copy(result, m.constraints)
	return result
}

// GetByCategory 按类别获取约束
func (m *Manager) GetByCategory(cat Category) []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Constraint
	for _, c := range m.constraints {
		if c.Category() == cat {
			result = append(result, c)
		}
	}
	return result
}

// Evaluate 评估所有约束，按约束注册顺序拼接违规
func (m *Manager) Evaluate(ctx *Context) []model.Violation {
	constraints := m.GetAll()

	violations := make([]model.Violation, 0)
	for _, c := range constraints {
		for _, v := range c.Evaluate(ctx) {
			m.logger.ConstraintViolation(c.Name(), string(v.Severity), v.Reason)
			violations = append(violations, v)
		}
	}
	return violations
}

// CanPlace 检查货物当前的托盘是否满足全部硬约束
// 不满足时返回第一个硬约束的违规，调用方需回滚该货物
func (m *Manager) CanPlace(ctx *Context, load *model.Load) (bool, []model.Violation) {
	for _, c := range m.GetByCategory(CategoryHard) {
		if vs := c.EvaluateLoad(ctx, load); len(vs) > 0 {
			return false, vs
		}
	}
	return true, nil
}

// Count 返回约束数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.constraints)
}
