// Package geometry 挂车规格归一化、托盘位网格与轴荷计算
package geometry

import (
	"math"
	"sort"

	"github.com/paiban/loadplan/pkg/model"
)

// 兜底规格（53英尺厢式挂车）
const (
	FallbackLengthM          = 16.15
	FallbackWidthM           = 2.49
	FallbackHeightM          = 2.69
	FallbackLaneCount        = 2
	FallbackSlotCount        = 26
	FallbackLegalWeightLbs   = 44000.0
	FallbackDriveAxleX       = 1.2
	FallbackTrailerAxleX     = 14.95
	FallbackTargetForwardPct = 50.0
)

// Fallback 返回硬编码的兜底规格
func Fallback() model.TrailerSpec {
	return model.TrailerSpec{
		LengthM:          FallbackLengthM,
		WidthM:           FallbackWidthM,
		HeightM:          FallbackHeightM,
		LaneCount:        FallbackLaneCount,
		SlotCount:        FallbackSlotCount,
		LegalWeightLbs:   FallbackLegalWeightLbs,
		DriveAxleX:       FallbackDriveAxleX,
		TrailerAxleX:     FallbackTrailerAxleX,
		TargetForwardPct: FallbackTargetForwardPct,
		SegregatedLanes:  []int{},
	}
}

// Normalize 以兜底规格为默认值归一化
func Normalize(p *model.TrailerSpecPatch) model.TrailerSpec {
	return NormalizeWith(p, Fallback())
}

// NormalizeWith 用组织默认规格补齐缺失或无效字段
//
// 默认规格本身先按兜底规格归一化，因此结果的每个字段都有效。
// 该函数是幂等的：NormalizeWith(NormalizeWith(x, d).Patch(), d) == NormalizeWith(x, d)。
func NormalizeWith(p *model.TrailerSpecPatch, defaults model.TrailerSpec) model.TrailerSpec {
	dp := defaults.Patch()
	base := sanitize(&dp, Fallback())
	return sanitize(p, base)
}

// sanitize 逐字段校验，无效时取 base（base 必须已有效）
func sanitize(p *model.TrailerSpecPatch, base model.TrailerSpec) model.TrailerSpec {
	if p == nil {
		p = &model.TrailerSpecPatch{}
	}

	out := model.TrailerSpec{
		LengthM:          positiveOr(p.LengthM, base.LengthM),
		WidthM:           positiveOr(p.WidthM, base.WidthM),
		HeightM:          positiveOr(p.HeightM, base.HeightM),
		LaneCount:        atLeastOneOr(p.LaneCount, base.LaneCount),
		SlotCount:        atLeastOneOr(p.SlotCount, base.SlotCount),
		LegalWeightLbs:   positiveOr(p.LegalWeightLbs, base.LegalWeightLbs),
		TargetForwardPct: base.TargetForwardPct,
	}

	if p.TargetForwardPct != nil && validFloat(*p.TargetForwardPct) &&
		*p.TargetForwardPct >= 0 && *p.TargetForwardPct <= 100 {
		out.TargetForwardPct = *p.TargetForwardPct
	}

	out.DriveAxleX, out.TrailerAxleX = normalizeAxles(p, base, out.LengthM)

	lanes := base.SegregatedLanes
	if p.SegregatedLanes != nil {
		lanes = p.SegregatedLanes
	}
	out.SegregatedLanes = normalizeLanes(lanes, out.LaneCount)

	return out
}

// normalizeAxles 轴位置必须位于车厢内且驱动轴在挂车轴之前
// 不满足时两个轴位都按默认规格的相对位置缩放到当前车长
func normalizeAxles(p *model.TrailerSpecPatch, base model.TrailerSpec, length float64) (float64, float64) {
	drive, trailer := base.DriveAxleX, base.TrailerAxleX
	if p.DriveAxleX != nil {
		drive = *p.DriveAxleX
	}
	if p.TrailerAxleX != nil {
		trailer = *p.TrailerAxleX
	}

	if validAxles(drive, trailer, length) {
		return drive, trailer
	}

	ratio := length / base.LengthM
	return base.DriveAxleX * ratio, base.TrailerAxleX * ratio
}

func validAxles(drive, trailer, length float64) bool {
	if !validFloat(drive) || !validFloat(trailer) {
		return false
	}
	return drive >= 0 && trailer <= length && drive < trailer
}

// normalizeLanes 过滤越界列、去重并排序，结果非 nil
func normalizeLanes(lanes []int, laneCount int) []int {
	seen := make(map[int]bool, len(lanes))
	out := make([]int, 0, len(lanes))
	for _, l := range lanes {
		if l < 0 || l >= laneCount || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func positiveOr(v *float64, def float64) float64 {
	if v == nil || !validFloat(*v) || *v <= 0 {
		return def
	}
	return *v
}

func atLeastOneOr(v *int, def int) int {
	if v == nil || *v < 1 {
		return def
	}
	return *v
}

func validFloat(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
