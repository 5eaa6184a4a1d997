package geometry

import (
	"math"
	"reflect"
	"testing"

	"github.com/paiban/loadplan/pkg/model"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int { return &v }

func TestNormalize_Defaults(t *testing.T) {
	spec := Normalize(nil)
	if !reflect.DeepEqual(spec, Fallback()) {
		t.Errorf("Normalize(nil) = %+v, expected fallback", spec)
	}

	spec = Normalize(&model.TrailerSpecPatch{SlotCount: intp(20), LegalWeightLbs: f64(44000)})
	if spec.SlotCount != 20 {
		t.Errorf("SlotCount = %d, expected 20", spec.SlotCount)
	}
	if spec.LaneCount != FallbackLaneCount || spec.LengthM != FallbackLengthM {
		t.Errorf("缺失字段应取默认值: %+v", spec)
	}
}

func TestNormalize_InvalidFields(t *testing.T) {
	tests := []struct {
		name  string
		patch model.TrailerSpecPatch
		check func(t *testing.T, s model.TrailerSpec)
	}{
		{
			name:  "负长度回退",
			patch: model.TrailerSpecPatch{LengthM: f64(-1)},
			check: func(t *testing.T, s model.TrailerSpec) {
				if s.LengthM != FallbackLengthM {
					t.Errorf("LengthM = %v", s.LengthM)
				}
			},
		},
		{
			name:  "列数为0回退",
			patch: model.TrailerSpecPatch{LaneCount: intp(0), SlotCount: intp(-3)},
			check: func(t *testing.T, s model.TrailerSpec) {
				if s.LaneCount != FallbackLaneCount || s.SlotCount != FallbackSlotCount {
					t.Errorf("LaneCount = %d, SlotCount = %d", s.LaneCount, s.SlotCount)
				}
			},
		},
		{
			name:  "NaN 重量回退",
			patch: model.TrailerSpecPatch{LegalWeightLbs: f64(math.NaN())},
			check: func(t *testing.T, s model.TrailerSpec) {
				if s.LegalWeightLbs != FallbackLegalWeightLbs {
					t.Errorf("LegalWeightLbs = %v", s.LegalWeightLbs)
				}
			},
		},
		{
			name:  "短车厢轴位按比例缩放",
			patch: model.TrailerSpecPatch{LengthM: f64(10)},
			check: func(t *testing.T, s model.TrailerSpec) {
				if s.TrailerAxleX > s.LengthM || s.DriveAxleX >= s.TrailerAxleX {
					t.Errorf("轴位无效: drive=%v trailer=%v", s.DriveAxleX, s.TrailerAxleX)
				}
				if math.Abs(s.DriveAxleX-FallbackDriveAxleX*10/FallbackLengthM) > 1e-9 {
					t.Errorf("DriveAxleX = %v", s.DriveAxleX)
				}
			},
		},
		{
			name:  "驱动轴在挂车轴之后回退",
			patch: model.TrailerSpecPatch{DriveAxleX: f64(12), TrailerAxleX: f64(3)},
			check: func(t *testing.T, s model.TrailerSpec) {
				if s.DriveAxleX != FallbackDriveAxleX || s.TrailerAxleX != FallbackTrailerAxleX {
					t.Errorf("drive=%v trailer=%v", s.DriveAxleX, s.TrailerAxleX)
				}
			},
		},
		{
			name:  "目标比例越界回退",
			patch: model.TrailerSpecPatch{TargetForwardPct: f64(140)},
			check: func(t *testing.T, s model.TrailerSpec) {
				if s.TargetForwardPct != FallbackTargetForwardPct {
					t.Errorf("TargetForwardPct = %v", s.TargetForwardPct)
				}
			},
		},
		{
			name:  "隔离列过滤去重排序",
			patch: model.TrailerSpecPatch{LaneCount: intp(3), SegregatedLanes: []int{2, 0, 2, 5, -1}},
			check: func(t *testing.T, s model.TrailerSpec) {
				if !reflect.DeepEqual(s.SegregatedLanes, []int{0, 2}) {
					t.Errorf("SegregatedLanes = %v", s.SegregatedLanes)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Normalize(&tt.patch))
		})
	}
}

func TestNormalizeWith_OrgDefaults(t *testing.T) {
	defaults := Fallback()
	defaults.SlotCount = 30
	defaults.SegregatedLanes = []int{1}

	spec := NormalizeWith(nil, defaults)
	if spec.SlotCount != 30 {
		t.Errorf("SlotCount = %d, expected 30", spec.SlotCount)
	}
	if !reflect.DeepEqual(spec.SegregatedLanes, []int{1}) {
		t.Errorf("SegregatedLanes = %v", spec.SegregatedLanes)
	}

	// 显式空列表覆盖默认隔离列
	spec = NormalizeWith(&model.TrailerSpecPatch{SegregatedLanes: []int{}}, defaults)
	if len(spec.SegregatedLanes) != 0 {
		t.Errorf("SegregatedLanes = %v, expected empty", spec.SegregatedLanes)
	}

	// 无效的组织默认值本身也会被兜底
	spec = NormalizeWith(nil, model.TrailerSpec{SlotCount: 12})
	if spec.SlotCount != 12 || spec.LaneCount != FallbackLaneCount {
		t.Errorf("spec = %+v", spec)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	defaults := Fallback()
	defaults.SegregatedLanes = []int{0}

	patches := []*model.TrailerSpecPatch{
		nil,
		{},
		{SlotCount: intp(7), LaneCount: intp(3)},
		{LengthM: f64(10)},
		{LengthM: f64(12), DriveAxleX: f64(11), TrailerAxleX: f64(2)},
		{SegregatedLanes: []int{}},
		{SegregatedLanes: []int{9}},
		{TargetForwardPct: f64(42)},
	}

	for i, p := range patches {
		once := NormalizeWith(p, defaults)
		patch := once.Patch()
		twice := NormalizeWith(&patch, defaults)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("case %d: normalize 不幂等\n once=%+v\ntwice=%+v", i, once, twice)
		}
	}
}

func TestLaneCapacity(t *testing.T) {
	tests := []struct {
		name  string
		lanes int
		slots int
		want  []int
	}{
		{"均分", 2, 26, []int{13, 13}},
		{"最后一列不满", 2, 5, []int{3, 2}},
		{"列数多于托盘位", 3, 1, []int{1, 0, 0}},
		{"单列", 1, 4, []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := model.TrailerSpec{LaneCount: tt.lanes, SlotCount: tt.slots}
			total := 0
			for lane, want := range tt.want {
				got := LaneCapacity(spec, lane)
				if got != want {
					t.Errorf("LaneCapacity(%d) = %d, expected %d", lane, got, want)
				}
				total += got
			}
			if total != tt.slots {
				t.Errorf("总容量 = %d, expected %d", total, tt.slots)
			}
			if len(Cells(spec)) != tt.slots {
				t.Errorf("len(Cells) = %d, expected %d", len(Cells(spec)), tt.slots)
			}
		})
	}
}

func TestNeighbors(t *testing.T) {
	spec := model.TrailerSpec{LaneCount: 2, SlotCount: 5}

	got := Neighbors(spec, model.Cell{Lane: 0, Slot: 0})
	want := []model.Cell{{Lane: 0, Slot: 1}, {Lane: 1, Slot: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Neighbors(0,0) = %v, expected %v", got, want)
	}

	// lane 1 只有2个位，(0,2) 的右邻不存在
	got = Neighbors(spec, model.Cell{Lane: 0, Slot: 2})
	want = []model.Cell{{Lane: 0, Slot: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Neighbors(0,2) = %v, expected %v", got, want)
	}

	if !Adjacent(model.Cell{Lane: 0, Slot: 3}, model.Cell{Lane: 1, Slot: 3}) {
		t.Error("同位相邻列应相邻")
	}
	if Adjacent(model.Cell{Lane: 0, Slot: 3}, model.Cell{Lane: 1, Slot: 4}) {
		t.Error("对角不应相邻")
	}
}

func TestAxleBalance_Uniform(t *testing.T) {
	spec := Fallback()
	var placements []model.Placement
	for _, c := range Cells(spec) {
		placements = append(placements, model.Placement{LaneIndex: c.Lane, SlotIndex: c.Slot, WeightLbs: 1000})
	}

	class, pct := AxleBalance(spec, placements)
	if class != model.AxleGood {
		t.Errorf("class = %v, expected GOOD", class)
	}
	if math.Abs(pct-50) > 1e-6 {
		t.Errorf("forward pct = %v, expected 50", pct)
	}

	class, pct = AxleBalance(spec, nil)
	if class != model.AxleGood || pct != spec.TargetForwardPct {
		t.Errorf("空方案应返回目标比例: %v %v", class, pct)
	}
}

func TestAxleBalance_Monotonic(t *testing.T) {
	spec := Fallback()
	last := per(spec) - 1

	prevRank := -1
	prevDev := -1.0
	for front := 50.0; front <= 100; front += 2.5 {
		placements := []model.Placement{
			{SlotIndex: 0, WeightLbs: front},
			{SlotIndex: last, WeightLbs: 100 - front},
		}
		class, pct := AxleBalance(spec, placements)
		dev := math.Abs(pct - spec.TargetForwardPct)
		if dev < prevDev {
			t.Fatalf("front=%v: 偏差减小 %v < %v", front, dev, prevDev)
		}
		if class.Rank() < prevRank {
			t.Fatalf("front=%v: 分级变好 %v", front, class)
		}
		prevRank, prevDev = class.Rank(), dev
	}
	if prevRank != model.AxleBad.Rank() {
		t.Errorf("全部重量在车头应为 BAD")
	}
}

func TestClassifyAxle(t *testing.T) {
	spec := Fallback()
	tests := []struct {
		f    float64
		want model.AxleBalance
	}{
		{0.5, model.AxleGood},
		{0.575, model.AxleGood},
		{0.42, model.AxleWarn},
		{0.64, model.AxleWarn},
		{0.66, model.AxleBad},
		{0.1, model.AxleBad},
	}
	for _, tt := range tests {
		if got := ClassifyAxle(spec, tt.f); got != tt.want {
			t.Errorf("ClassifyAxle(%v) = %v, expected %v", tt.f, got, tt.want)
		}
	}

	spec.TargetForwardPct = 60
	if got := ClassifyAxle(spec, 0.6); got != model.AxleGood {
		t.Errorf("目标60%%时 0.6 应为 GOOD, got %v", got)
	}
}

func per(spec model.TrailerSpec) int { return spec.SlotsPerLane() }
