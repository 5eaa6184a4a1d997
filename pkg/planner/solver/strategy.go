package solver

import (
	"sort"
	"strings"

	"github.com/paiban/loadplan/pkg/model"
)

// Strategy 货物排序策略
type Strategy string

const (
	StrategyWeightDesc         Strategy = "weight_desc"
	StrategyStopWindowAsc      Strategy = "stop_window_asc"
	StrategyDestinationGrouped Strategy = "destination_grouped"
	StrategyPalletsDesc        Strategy = "pallets_desc"
)

// AllStrategies 按声明顺序排列，建议方案排名相同时以此为准
var AllStrategies = []Strategy{
	StrategyWeightDesc,
	StrategyStopWindowAsc,
	StrategyDestinationGrouped,
	StrategyPalletsDesc,
}

// DefaultStrategy 默认策略
const DefaultStrategy = StrategyWeightDesc

// ParseStrategy 解析策略名称
func ParseStrategy(s string) (Strategy, bool) {
	norm := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range AllStrategies {
		if st == norm {
			return st, true
		}
	}
	return DefaultStrategy, false
}

// Description 策略说明
func (s Strategy) Description() string {
	switch s {
	case StrategyWeightDesc:
		return "重货优先，先装最重的货物以稳定轴荷"
	case StrategyStopWindowAsc:
		return "按送达时间窗升序，便于按顺序卸货"
	case StrategyDestinationGrouped:
		return "同一目的地的货物连续装载"
	case StrategyPalletsDesc:
		return "托盘数多的货物优先"
	default:
		return ""
	}
}

// OrderLoads 按策略返回排序后的货物副本，相同键保持原始顺序
func OrderLoads(loads []*model.Load, s Strategy) []*model.Load {
	ordered := make([]*model.Load, len(loads))
	copy(ordered, loads)

	switch s {
	case StrategyStopWindowAsc:
		sort.SliceStable(ordered, func(i, j int) bool {
			return lessEmptyLast(ordered[i].StopWindow, ordered[j].StopWindow)
		})
	case StrategyDestinationGrouped:
		sort.SliceStable(ordered, func(i, j int) bool {
			return lessEmptyLast(ordered[i].DestinationCode, ordered[j].DestinationCode)
		})
	case StrategyPalletsDesc:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Pallets > ordered[j].Pallets
		})
	default:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].WeightLbs > ordered[j].WeightLbs
		})
	}
	return ordered
}

// lessEmptyLast 字符串升序，空值排在最后
func lessEmptyLast(a, b string) bool {
	if a == "" || b == "" {
		return a != "" && b == ""
	}
	return a < b
}
