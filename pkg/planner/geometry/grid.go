package geometry

import "github.com/paiban/loadplan/pkg/model"

// LaneCapacity 某列的托盘位数（最后一列可能不满）
func LaneCapacity(spec model.TrailerSpec, lane int) int {
	if lane < 0 || lane >= spec.LaneCount {
		return 0
	}
	per := spec.SlotsPerLane()
	c := spec.SlotCount - lane*per
	if c > per {
		c = per
	}
	if c < 0 {
		return 0
	}
	return c
}

// InBounds 坐标是否为有效托盘位
func InBounds(spec model.TrailerSpec, c model.Cell) bool {
	return c.Slot >= 0 && c.Slot < LaneCapacity(spec, c.Lane)
}

// Cells 按列优先顺序返回全部托盘位
func Cells(spec model.TrailerSpec) []model.Cell {
	cells := make([]model.Cell, 0, spec.SlotCount)
	for lane := 0; lane < spec.LaneCount; lane++ {
		for slot := 0; slot < LaneCapacity(spec, lane); slot++ {
			cells = append(cells, model.Cell{Lane: lane, Slot: slot})
		}
	}
	return cells
}

// Neighbors 四邻域内的有效托盘位（同列相邻位或同位相邻列）
func Neighbors(spec model.TrailerSpec, c model.Cell) []model.Cell {
	candidates := [4]model.Cell{
		{Lane: c.Lane, Slot: c.Slot - 1},
		{Lane: c.Lane, Slot: c.Slot + 1},
		{Lane: c.Lane - 1, Slot: c.Slot},
		{Lane: c.Lane + 1, Slot: c.Slot},
	}
	out := make([]model.Cell, 0, 4)
	for _, n := range candidates {
		if InBounds(spec, n) {
			out = append(out, n)
		}
	}
	return out
}

// Adjacent 两个托盘位是否相邻
func Adjacent(a, b model.Cell) bool {
	dl := a.Lane - b.Lane
	ds := a.Slot - b.Slot
	if dl == 0 {
		return ds == 1 || ds == -1
	}
	if ds == 0 {
		return dl == 1 || dl == -1
	}
	return false
}

// SlotPositionM 托盘位中心的纵向位置（米，从车头算起）
func SlotPositionM(spec model.TrailerSpec, slot int) float64 {
	per := spec.SlotsPerLane()
	if per <= 0 {
		return spec.LengthM / 2
	}
	return (float64(slot) + 0.5) / float64(per) * spec.LengthM
}
