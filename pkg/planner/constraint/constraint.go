// Package constraint 定义装载约束接口、评估上下文和管理器
package constraint

import (
	"sort"

	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/geometry"
)

// Type 约束规则标识
type Type string

const (
	// 货物级规则（由货物的约束集合触发）
	TypeNoMix          Type = "no_mix"
	TypeNoSplit        Type = "no_split"
	TypeDirectNoTouch  Type = "direct_no_touch"
	TypeTempControlled Type = "temp_controlled"
	TypeHazmat         Type = "hazmat"
	TypeStackLimited   Type = "stack_limited"

	// 整车规则
	TypeOverweight  Type = "overweight"
	TypeAxleBalance Type = "axle_balance"
)

// Category 约束类别
type Category string

const (
	CategoryHard Category = "hard" // 违反时回滚该货物的全部托盘
	CategorySoft Category = "soft" // 违反时仅记录，托盘保留
)

// Constraint 约束接口
type Constraint interface {
	// Name 返回约束名称
	Name() string

	// Type 返回规则标识
	Type() Type

	// Category 返回约束类别
	Category() Category

	// Severity 返回违反时的严重程度
	Severity() model.Severity

	// Kind 返回触发该规则的货物约束类型，整车规则返回空
	Kind() model.ConstraintKind

	// Evaluate 评估整个装载方案
	Evaluate(ctx *Context) []model.Violation

	// EvaluateLoad 只评估某个货物当前的托盘
	EvaluateLoad(ctx *Context, load *model.Load) []model.Violation
}

// Context 评估上下文：货物、规格和当前托盘位占用
type Context struct {
	Spec       model.TrailerSpec
	Loads      []*model.Load
	Placements []model.Placement

	// 索引缓存
	loadMap map[string]*model.Load
	cells   map[model.Cell]int
	byLoad  map[string][]int
}

// NewContext 创建评估上下文
func NewContext(loads []*model.Load, placements []model.Placement, spec model.TrailerSpec) *Context {
	c := &Context{
		Spec:    spec,
		Loads:   loads,
		loadMap: make(map[string]*model.Load, len(loads)),
	}
	for _, l := range loads {
		c.loadMap[l.ID] = l
	}
	c.SetPlacements(placements)
	return c
}

// SetPlacements 设置托盘位置并重建索引
func (c *Context) SetPlacements(placements []model.Placement) {
	c.Placements = append([]model.Placement(nil), placements...)
	c.rebuildIndexes()
}

// AddPlacement 添加一个托盘位置
func (c *Context) AddPlacement(p model.Placement) {
	c.Placements = append(c.Placements, p)
	idx := len(c.Placements) - 1
	c.cells[p.Cell()] = idx
	c.byLoad[p.LoadID] = append(c.byLoad[p.LoadID], idx)
}

// RemoveLoad 移除某货物的全部托盘
func (c *Context) RemoveLoad(loadID string) {
	if len(c.byLoad[loadID]) == 0 {
		return
	}
	kept := c.Placements[:0]
	for _, p := range c.Placements {
		if p.LoadID != loadID {
			kept = append(kept, p)
		}
	}
	c.Placements = kept
	c.rebuildIndexes()
}

// rebuildIndexes 重建位置索引
func (c *Context) rebuildIndexes() {
	c.cells = make(map[model.Cell]int, len(c.Placements))
	c.byLoad = make(map[string][]int)
	for i, p := range c.Placements {
		c.cells[p.Cell()] = i
		c.byLoad[p.LoadID] = append(c.byLoad[p.LoadID], i)
	}
}

// GetLoad 获取货物
func (c *Context) GetLoad(id string) *model.Load {
	return c.loadMap[id]
}

// At 获取某托盘位上的托盘
func (c *Context) At(cell model.Cell) (*model.Placement, bool) {
	idx, ok := c.cells[cell]
	if !ok {
		return nil, false
	}
	return &c.Placements[idx], true
}

// IsOccupied 托盘位是否已占用
func (c *Context) IsOccupied(cell model.Cell) bool {
	_, ok := c.cells[cell]
	return ok
}

// Occupied 已占用托盘位数量
func (c *Context) Occupied() int {
	return len(c.cells)
}

// LoadPlacements 获取某货物的全部托盘（按写入顺序）
func (c *Context) LoadPlacements(loadID string) []*model.Placement {
	idxs := c.byLoad[loadID]
	out := make([]*model.Placement, len(idxs))
	for i, idx := range idxs {
		out[i] = &c.Placements[idx]
	}
	return out
}

// PlacedLoadIDs 已装载的货物ID（按货物列表顺序）
func (c *Context) PlacedLoadIDs() []string {
	ids := make([]string, 0, len(c.byLoad))
	seen := make(map[string]bool, len(c.byLoad))
	for _, l := range c.Loads {
		if len(c.byLoad[l.ID]) > 0 && !seen[l.ID] {
			seen[l.ID] = true
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// Neighbors 与托盘相邻的其他托盘
func (c *Context) Neighbors(p *model.Placement) []*model.Placement {
	var out []*model.Placement
	for _, cell := range geometry.Neighbors(c.Spec, p.Cell()) {
		if n, ok := c.At(cell); ok {
			out = append(out, n)
		}
	}
	return out
}

// TouchingLoads 返回与某货物相邻的其他货物，以及该货物中参与相邻的托盘序号
// 结果按其他货物在货物列表中的顺序排列，未知货物排在最后
func (c *Context) TouchingLoads(loadID string) ([]string, map[string][]int) {
	pallets := make(map[string]map[int]bool)
	for _, p := range c.LoadPlacements(loadID) {
		for _, n := range c.Neighbors(p) {
			if n.LoadID == loadID {
				continue
			}
			if pallets[n.LoadID] == nil {
				pallets[n.LoadID] = make(map[int]bool)
			}
			pallets[n.LoadID][p.PalletIndex] = true
		}
	}

	order := make(map[string]int, len(c.Loads))
	for i, l := range c.Loads {
		order[l.ID] = i
	}
	others := make([]string, 0, len(pallets))
	for id := range pallets {
		others = append(others, id)
	}
	sort.Slice(others, func(i, j int) bool {
		oi, iok := order[others[i]]
		oj, jok := order[others[j]]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return others[i] < others[j]
	})

	indices := make(map[string][]int, len(pallets))
	for id, set := range pallets {
		indices[id] = sortedKeys(set)
	}
	return others, indices
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// PalletIndices 某货物的全部托盘序号（升序）
func (c *Context) PalletIndices(loadID string) []int {
	set := make(map[int]bool)
	for _, p := range c.LoadPlacements(loadID) {
		set[p.PalletIndex] = true
	}
	return sortedKeys(set)
}

// TotalWeight 当前总重量
func (c *Context) TotalWeight() float64 {
	var total float64
	for i := range c.Placements {
		total += c.Placements[i].WeightLbs
	}
	return total
}
