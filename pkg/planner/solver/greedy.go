// Package solver 提供装载方案求解器
package solver

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paiban/loadplan/pkg/logger"
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint"
	"github.com/paiban/loadplan/pkg/planner/constraint/builtin"
	"github.com/paiban/loadplan/pkg/planner/geometry"
)

// Solver 求解器接口
type Solver interface {
	// Plan 生成托盘位置和违规，相同输入必须得到相同输出
	Plan(loads []*model.Load, spec model.TrailerSpec, strategy Strategy) ([]model.Placement, []model.Violation)

	// Name 返回求解器名称
	Name() string
}

// GreedySolver 贪心求解器
//
// 按策略排序货物后逐个放置：普通货物从当前列开始按列优先填充空位，
// 列满或遇到 NO_MIX/DIRECT_NO_TOUCH 边界时换列；NO_SPLIT 货物只接受
// 同一列的连续空位；放不下的货物整批排除并记录违规。最后对全部
// 托盘再做一次约束评估。
type GreedySolver struct {
	constraintManager *constraint.Manager
	logger            *logger.PlannerLogger
}

// NewGreedySolver 创建贪心求解器
func NewGreedySolver(cm *constraint.Manager) *GreedySolver {
	return &GreedySolver{
		constraintManager: cm,
		logger:            logger.NewPlannerLogger(),
	}
}

// NewDefaultSolver 创建使用内置约束的贪心求解器
func NewDefaultSolver() *GreedySolver {
	return NewGreedySolver(builtin.NewDefaultManager())
}

// Name 返回求解器名称
func (s *GreedySolver) Name() string {
	return "GreedySolver"
}

// Plan 使用贪心算法生成装载方案
func (s *GreedySolver) Plan(loads []*model.Load, spec model.TrailerSpec, strategy Strategy) ([]model.Placement, []model.Violation) {
	start := time.Now()
	s.logger.StartPlan(string(strategy), len(loads), spec.SlotCount)

	if len(loads) == 0 {
		return []model.Placement{}, []model.Violation{}
	}

	ordered := OrderLoads(loads, strategy)
	ctx := constraint.NewContext(ordered, nil, spec)
	violations := make([]model.Violation, 0)
	dims := palletDims(spec)
	cursor := 0

	for seq, load := range ordered {
		if load.Pallets <= 0 {
			continue
		}

		free := spec.SlotCount - ctx.Occupied()
		if load.Pallets > free {
			v := model.Violation{
				LoadID:       load.ID,
				Severity:     model.SeverityHigh,
				Type:         model.ViolationCapacity,
				Reason:       fmt.Sprintf("货物 %s 需要 %d 个托盘位，仅剩 %d 个", load.ID, load.Pallets, free),
				SuggestedFix: "改用容量更大的挂车，或将该货物分配到其他挂车",
			}
			violations = append(violations, v)
			s.logger.LoadExcluded(load.ID, string(v.Type), v.Reason)
			continue
		}

		lanes := laneOrder(ctx, load, cursor)

		var cells []model.Cell
		if load.Constraints.Has(model.KindNoSplit) {
			cells = findContiguous(ctx, load.Pallets, lanes)
			if cells == nil {
				v := model.Violation{
					LoadID:       load.ID,
					Severity:     model.SeverityHigh,
					Type:         model.ViolationSplit,
					Reason:       fmt.Sprintf("货物 %s 要求 NO_SPLIT，但没有 %d 个连续的空托盘位（剩余 %d 个）", load.ID, load.Pallets, free),
					SuggestedFix: "调整装载顺序释放连续托盘位，或改用其他挂车",
				}
				violations = append(violations, v)
				s.logger.LoadExcluded(load.ID, string(v.Type), v.Reason)
				continue
			}
		} else {
			cells = findCells(ctx, load, lanes)
		}

		weights := splitWeight(load.WeightLbs, load.Pallets)
		for i, cell := range cells {
			order := seq
			ctx.AddPlacement(model.Placement{
				LoadID:          load.ID,
				PalletIndex:     i,
				SlotIndex:       cell.Slot,
				LaneIndex:       cell.Lane,
				WeightLbs:       weights[i],
				Dims:            dims,
				SequenceIndex:   &order,
				DestinationCode: load.DestinationCode,
				StopWindow:      load.StopWindow,
			})
		}

		// 硬约束不满足则整批回滚
		if ok, vs := s.constraintManager.CanPlace(ctx, load); !ok {
			ctx.RemoveLoad(load.ID)
			violations = append(violations, vs...)
			for _, v := range vs {
				s.logger.LoadExcluded(load.ID, string(v.Type), v.Reason)
			}
			continue
		}

		last := cells[len(cells)-1].Lane
		if isolating(load) {
			cursor = (last + 1) % spec.LaneCount
		} else {
			cursor = last
		}
	}

	// 最终评估：只追加违规，不移除托盘
	violations = append(violations, s.constraintManager.Evaluate(ctx)...)

	placements := ctx.Placements
	if placements == nil {
		placements = []model.Placement{}
	}
	s.logger.PlanComplete(string(strategy), len(placements), len(violations), time.Since(start))
	return placements, violations
}

// isolating 货物是否要求与其他货物隔开（换列边界）
func isolating(load *model.Load) bool {
	return load.Constraints.Has(model.KindNoMix) || load.Constraints.Has(model.KindDirectNoTouch)
}

// laneOrder 返回尝试的列顺序
//
// 从游标列开始轮转；配置隔离区时，需要隔离的货物优先隔离列，
// 其他货物优先非隔离列；需要隔开的货物优先完全空闲的列。
func laneOrder(ctx *constraint.Context, load *model.Load, start int) []int {
	spec := ctx.Spec
	segregated := load.Constraints.HasSegregated()

	var primary, secondary []int
	for i := 0; i < spec.LaneCount; i++ {
		lane := (start + i) % spec.LaneCount
		if spec.HasSegregatedZone() && spec.IsSegregatedLane(lane) != segregated {
			secondary = append(secondary, lane)
		} else {
			primary = append(primary, lane)
		}
	}

	if isolating(load) {
		primary = emptyFirst(ctx, primary)
		secondary = emptyFirst(ctx, secondary)
	}
	return append(primary, secondary...)
}

// emptyFirst 稳定地把完全空闲的列排在前面
func emptyFirst(ctx *constraint.Context, lanes []int) []int {
	empty := make([]int, 0, len(lanes))
	used := make([]int, 0, len(lanes))
	for _, lane := range lanes {
		if laneUsed(ctx, lane) {
			used = append(used, lane)
		} else {
			empty = append(empty, lane)
		}
	}
	return append(empty, used...)
}

func laneUsed(ctx *constraint.Context, lane int) bool {
	for slot := 0; slot < geometry.LaneCapacity(ctx.Spec, lane); slot++ {
		if ctx.IsOccupied(model.Cell{Lane: lane, Slot: slot}) {
			return true
		}
	}
	return false
}

// findContiguous 按列顺序查找第一段 n 个连续空位
func findContiguous(ctx *constraint.Context, n int, lanes []int) []model.Cell {
	for _, lane := range lanes {
		run := 0
		for slot := 0; slot < geometry.LaneCapacity(ctx.Spec, lane); slot++ {
			if ctx.IsOccupied(model.Cell{Lane: lane, Slot: slot}) {
				run = 0
				continue
			}
			run++
			if run == n {
				cells := make([]model.Cell, n)
				for i := 0; i < n; i++ {
					cells[i] = model.Cell{Lane: lane, Slot: slot - n + 1 + i}
				}
				return cells
			}
		}
	}
	return nil
}

// findCells 按列优先顺序选取空位，调用方保证空位足够
// STACK_LIMITED 货物先在每列各取一个空位
func findCells(ctx *constraint.Context, load *model.Load, lanes []int) []model.Cell {
	n := load.Pallets
	cells := make([]model.Cell, 0, n)
	picked := make(map[model.Cell]bool, n)

	take := func(c model.Cell) {
		cells = append(cells, c)
		picked[c] = true
	}

	if load.Constraints.Has(model.KindStackLimited) {
		for _, lane := range lanes {
			if len(cells) == n {
				break
			}
			for slot := 0; slot < geometry.LaneCapacity(ctx.Spec, lane); slot++ {
				c := model.Cell{Lane: lane, Slot: slot}
				if !ctx.IsOccupied(c) {
					take(c)
					break
				}
			}
		}
	}

	for _, lane := range lanes {
		for slot := 0; slot < geometry.LaneCapacity(ctx.Spec, lane) && len(cells) < n; slot++ {
			c := model.Cell{Lane: lane, Slot: slot}
			if !ctx.IsOccupied(c) && !picked[c] {
				take(c)
			}
		}
	}
	return cells
}

// splitWeight 按两位小数均分重量，余数计入最后一个托盘，保证总和等于货物重量
func splitWeight(total float64, n int) []float64 {
	weights := make([]float64, n)
	if n <= 0 {
		return weights
	}

	sum := decimal.NewFromFloat(total)
	share := sum.Div(decimal.NewFromInt(int64(n))).Round(2)
	rest := sum.Sub(share.Mul(decimal.NewFromInt(int64(n - 1))))

	for i := 0; i < n-1; i++ {
		weights[i] = share.InexactFloat64()
	}
	weights[n-1] = rest.InexactFloat64()
	return weights
}

// palletDims 单个托盘位的尺寸
func palletDims(spec model.TrailerSpec) *model.PalletDims {
	per := spec.SlotsPerLane()
	if per <= 0 || spec.LaneCount <= 0 {
		return nil
	}
	return &model.PalletDims{
		LengthM: spec.LengthM / float64(per),
		WidthM:  spec.WidthM / float64(spec.LaneCount),
		HeightM: spec.HeightM,
	}
}
