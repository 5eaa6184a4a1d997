// Package validator 校验调用方提交的托盘摆放方案
package validator

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/geometry"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictDuplicateCell   ConflictType = "duplicate_cell"   // 同一托盘位被占用两次
	ConflictOutOfBounds     ConflictType = "out_of_bounds"    // 超出挂车网格
	ConflictUnknownLoad     ConflictType = "unknown_load"     // 引用了不存在的货物
	ConflictPalletIndex     ConflictType = "pallet_index"     // 托盘序号越界
	ConflictDuplicatePallet ConflictType = "duplicate_pallet" // 同一托盘摆放两次
	ConflictWeight          ConflictType = "weight"           // 托盘重量无效
	ConflictWeightMismatch  ConflictType = "weight_mismatch"  // 托盘重量之和与货物重量不一致
)

// Conflict 冲突信息
type Conflict struct {
	Type       ConflictType `json:"type"`
	Severity   string       `json:"severity"` // error/warning
	LoadID     string       `json:"load_id,omitempty"`
	Index      int          `json:"index"` // 提交列表中的位置
	Message    string       `json:"message"`
	Placements []int        `json:"placements,omitempty"` // 相关摆放的位置
}

// IsError 是否为错误级别
func (c Conflict) IsError() bool {
	return c.Severity == "error"
}

// ConflictDetector 冲突检测器
type ConflictDetector struct {
	config *DetectorConfig
}

// DetectorConfig 检测器配置
type DetectorConfig struct {
	CheckWeights      bool    // 是否检查托盘重量之和
	WeightTolerance   float64 // 重量之和允许的偏差（磅）
	RequireKnownLoads bool    // 摆放必须引用已知货物
}

// DefaultDetectorConfig 返回默认配置
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		CheckWeights:      true,
		WeightTolerance:   0.5,
		RequireKnownLoads: true,
	}
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(config *DetectorConfig) *ConflictDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &ConflictDetector{config: config}
}

// DetectAll 检测所有冲突，按提交顺序返回
func (d *ConflictDetector) DetectAll(placements []model.Placement, loads []*model.Load, spec model.TrailerSpec) []Conflict {
	byID := make(map[string]*model.Load, len(loads))
	for _, l := range loads {
		byID[l.ID] = l
	}

	var conflicts []Conflict
	conflicts = append(conflicts, d.detectBounds(placements, spec)...)
	conflicts = append(conflicts, d.detectDuplicateCells(placements, spec)...)
	conflicts = append(conflicts, d.detectPalletIssues(placements, byID)...)
	if d.config.CheckWeights {
		conflicts = append(conflicts, d.detectWeightMismatch(placements, loads)...)
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Index < conflicts[j].Index
	})
	return conflicts
}

func (d *ConflictDetector) detectBounds(placements []model.Placement, spec model.TrailerSpec) []Conflict {
	var conflicts []Conflict
	for i := range placements {
		p := &placements[i]
		if geometry.InBounds(spec, p.Cell()) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:     ConflictOutOfBounds,
			Severity: "error",
			LoadID:   p.LoadID,
			Index:    i,
			Message: fmt.Sprintf("托盘位 (lane=%d, slot=%d) 超出挂车范围 %d 列 × %d 位",
				p.LaneIndex, p.SlotIndex, spec.LaneCount, spec.SlotsPerLane()),
		})
	}
	return conflicts
}

func (d *ConflictDetector) detectDuplicateCells(placements []model.Placement, spec model.TrailerSpec) []Conflict {
	var conflicts []Conflict
	first := make(map[model.Cell]int)
	for i := range placements {
		p := &placements[i]
		if !geometry.InBounds(spec, p.Cell()) {
			continue
		}
		prev, ok := first[p.Cell()]
		if !ok {
			first[p.Cell()] = i
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:       ConflictDuplicateCell,
			Severity:   "error",
			LoadID:     p.LoadID,
			Index:      i,
			Message:    fmt.Sprintf("托盘位 (lane=%d, slot=%d) 已被占用", p.LaneIndex, p.SlotIndex),
			Placements: []int{prev, i},
		})
	}
	return conflicts
}

func (d *ConflictDetector) detectPalletIssues(placements []model.Placement, byID map[string]*model.Load) []Conflict {
	type palletKey struct {
		loadID string
		index  int
	}

	var conflicts []Conflict
	seen := make(map[palletKey]int)
	for i := range placements {
		p := &placements[i]

		if p.WeightLbs < 0 || math.IsNaN(p.WeightLbs) || math.IsInf(p.WeightLbs, 0) {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictWeight,
				Severity: "error",
				LoadID:   p.LoadID,
				Index:    i,
				Message:  fmt.Sprintf("托盘重量无效: %v", p.WeightLbs),
			})
		}

		load := byID[p.LoadID]
		if load == nil {
			if d.config.RequireKnownLoads {
				conflicts = append(conflicts, Conflict{
					Type:     ConflictUnknownLoad,
					Severity: "error",
					LoadID:   p.LoadID,
					Index:    i,
					Message:  fmt.Sprintf("货物 '%s' 不在本次方案中", p.LoadID),
				})
			}
			continue
		}

		if p.PalletIndex < 0 || p.PalletIndex >= load.Pallets {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictPalletIndex,
				Severity: "error",
				LoadID:   p.LoadID,
				Index:    i,
				Message:  fmt.Sprintf("托盘序号 %d 超出范围 [0, %d)", p.PalletIndex, load.Pallets),
			})
			continue
		}

		key := palletKey{p.LoadID, p.PalletIndex}
		if prev, ok := seen[key]; ok {
			conflicts = append(conflicts, Conflict{
				Type:       ConflictDuplicatePallet,
				Severity:   "error",
				LoadID:     p.LoadID,
				Index:      i,
				Message:    fmt.Sprintf("货物 '%s' 的托盘 %d 重复摆放", p.LoadID, p.PalletIndex),
				Placements: []int{prev, i},
			})
			continue
		}
		seen[key] = i
	}
	return conflicts
}

// detectWeightMismatch 完整摆放的货物，托盘重量之和应等于货物重量（警告）
func (d *ConflictDetector) detectWeightMismatch(placements []model.Placement, loads []*model.Load) []Conflict {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	firstIdx := make(map[string]int)
	for i := range placements {
		p := &placements[i]
		if _, ok := firstIdx[p.LoadID]; !ok {
			firstIdx[p.LoadID] = i
		}
		sums[p.LoadID] += p.WeightLbs
		counts[p.LoadID]++
	}

	var conflicts []Conflict
	for _, l := range loads {
		if counts[l.ID] != l.Pallets || l.Pallets == 0 {
			continue
		}
		if math.Abs(sums[l.ID]-l.WeightLbs) <= d.config.WeightTolerance {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:     ConflictWeightMismatch,
			Severity: "warning",
			LoadID:   l.ID,
			Index:    firstIdx[l.ID],
			Message:  fmt.Sprintf("货物 '%s' 托盘重量之和 %.2f 与货物重量 %.2f 不一致", l.ID, sums[l.ID], l.WeightLbs),
		})
	}
	return conflicts
}

// Validate 检测冲突，存在错误级别冲突时返回 VALIDATION_FAILED
func (d *ConflictDetector) Validate(placements []model.Placement, loads []*model.Load, spec model.TrailerSpec) ([]Conflict, error) {
	conflicts := d.DetectAll(placements, loads, spec)

	var ve apperrors.ValidationErrors
	for _, c := range conflicts {
		if c.IsError() {
			ve.Add(fmt.Sprintf("placements[%d]", c.Index), c.Message)
		}
	}
	if ve.HasErrors() {
		return conflicts, ve.ToAppError()
	}
	return conflicts, nil
}
