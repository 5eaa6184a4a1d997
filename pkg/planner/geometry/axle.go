package geometry

import (
	"math"

	"github.com/paiban/loadplan/pkg/model"
)

// 轴荷分级阈值（与目标前轴占比的偏差，百分点）
const (
	AxleGoodTolerancePct = 7.5
	AxleWarnTolerancePct = 15.0
)

// ForwardShare 位于 x 处的重量分配到驱动轴的比例（线性插值，限制在 [0,1]）
func ForwardShare(spec model.TrailerSpec, x float64) float64 {
	span := spec.TrailerAxleX - spec.DriveAxleX
	if span <= 0 {
		return 0.5
	}
	f := (spec.TrailerAxleX - x) / span
	return math.Max(0, math.Min(1, f))
}

// ForwardFraction 整车重量中驱动轴承担的比例
// 没有装载或总重为0时返回目标比例
func ForwardFraction(spec model.TrailerSpec, placements []model.Placement) float64 {
	var total, forward float64
	for i := range placements {
		p := &placements[i]
		if p.WeightLbs <= 0 {
			continue
		}
		total += p.WeightLbs
		forward += p.WeightLbs * ForwardShare(spec, SlotPositionM(spec, p.SlotIndex))
	}
	if total <= 0 {
		return spec.TargetForwardPct / 100
	}
	return forward / total
}

// ClassifyAxle 按前轴占比与目标的偏差分级
func ClassifyAxle(spec model.TrailerSpec, f float64) model.AxleBalance {
	dev := math.Abs(f*100 - spec.TargetForwardPct)
	switch {
	case dev <= AxleGoodTolerancePct:
		return model.AxleGood
	case dev <= AxleWarnTolerancePct:
		return model.AxleWarn
	default:
		return model.AxleBad
	}
}

// AxleBalance 计算分级与前轴占比（百分比）
func AxleBalance(spec model.TrailerSpec, placements []model.Placement) (model.AxleBalance, float64) {
	f := ForwardFraction(spec, placements)
	return ClassifyAxle(spec, f), f * 100
}
