package constraint

import (
	"testing"

	"github.com/paiban/loadplan/pkg/model"
)

// stubConstraint 测试用约束，对指定货物返回一条违规
type stubConstraint struct {
	typ    Type
	cat    Category
	target string
}

func (s *stubConstraint) Name() string { return string(s.typ) }
func (s *stubConstraint) Type() Type { return s.typ }
func (s *stubConstraint) Category() Category { return s.cat }
func (s *stubConstraint) Severity() model.Severity { return model.SeverityHigh }
func (s *stubConstraint) Kind() model.ConstraintKind { return "" }
func (s *stubConstraint) Evaluate(ctx *Context) []model.Violation {
	var out []model.Violation
	for _, l := range ctx.Loads {
		out = append(out, s.EvaluateLoad(ctx, l)...)
	}
	return out
}
func (s *stubConstraint) EvaluateLoad(ctx *Context, load *model.Load) []model.Violation {
	if load.ID != s.target || len(ctx.LoadPlacements(load.ID)) == 0 {
		return nil
	}
	return []model.Violation{{LoadID: load.ID, Severity: model.SeverityHigh, Type: model.ViolationType(s.typ)}}
}

func testSpec() model.TrailerSpec {
	return model.TrailerSpec{LengthM: 10, LaneCount: 2, SlotCount: 6, LegalWeightLbs: 1000, DriveAxleX: 1, TrailerAxleX: 9, TargetForwardPct: 50}
}

func TestManager_RegisterOrder(t *testing.T) {
	m := NewManager()
	m.Register(&stubConstraint{typ: "soft_a", cat: CategorySoft})
	m.Register(&stubConstraint{typ: "hard_a", cat: CategoryHard})
	m.Register(&stubConstraint{typ: "soft_b", cat: CategorySoft})
	m.Register(&stubConstraint{typ: "hard_b", cat: CategoryHard})

	want := []Type{"hard_a", "hard_b", "soft_a", "soft_b"}
	all := m.GetAll()
	if len(all) != len(want) {
		t.Fatalf("Count = %d, expected %d", len(all), len(want))
	}
	for i, c := range all {
		if c.Type() != want[i] {
			t.Errorf("constraints[%d] = %s, expected %s", i, c.Type(), want[i])
		}
	}

	// 同类型替换
	m.Register(&stubConstraint{typ: "soft_a", cat: CategorySoft, target: "X"})
	if m.Count() != 4 {
		t.Errorf("替换后 Count = %d, expected 4", m.Count())
	}
	if got := m.GetAll()[2]; got.(*stubConstraint).target != "X" {
		t.Error("同类型注册应原位替换")
	}
	if hard := m.GetByCategory(CategoryHard); len(hard) != 2 {
		t.Errorf("硬约束数量 = %d, expected 2", len(hard))
	}
}

func TestManager_CanPlace(t *testing.T) {
	m := NewManager()
	m.Register(&stubConstraint{typ: "hard", cat: CategoryHard, target: "L2"})
	m.Register(&stubConstraint{typ: "soft", cat: CategorySoft, target: "L1"})

	loads := []*model.Load{{ID: "L1", Pallets: 1, WeightLbs: 10}, {ID: "L2", Pallets: 1, WeightLbs: 10}}
	ctx := NewContext(loads, []model.Placement{
		{LoadID: "L1", LaneIndex: 0, SlotIndex: 0, WeightLbs: 10},
		{LoadID: "L2", LaneIndex: 0, SlotIndex: 1, WeightLbs: 10},
	}, testSpec())

	if ok, _ := m.CanPlace(ctx, loads[0]); !ok {
		t.Error("L1 只违反软约束，应允许放置")
	}
	ok, vs := m.CanPlace(ctx, loads[1])
	if ok || len(vs) != 1 {
		t.Errorf("L2 违反硬约束: ok=%v violations=%v", ok, vs)
	}

	vs = m.Evaluate(ctx)
	if len(vs) != 2 || vs[0].LoadID != "L2" || vs[1].LoadID != "L1" {
		t.Errorf("Evaluate 应按约束顺序输出: %+v", vs)
	}
}

func TestContext_Indexes(t *testing.T) {
	loads := []*model.Load{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	ctx := NewContext(loads, nil, testSpec())

	ctx.AddPlacement(model.Placement{LoadID: "A", PalletIndex: 0, LaneIndex: 0, SlotIndex: 0})
	ctx.AddPlacement(model.Placement{LoadID: "A", PalletIndex: 1, LaneIndex: 0, SlotIndex: 1})
	ctx.AddPlacement(model.Placement{LoadID: "B", PalletIndex: 0, LaneIndex: 1, SlotIndex: 1})
	ctx.AddPlacement(model.Placement{LoadID: "C", PalletIndex: 0, LaneIndex: 0, SlotIndex: 2})

	if !ctx.IsOccupied(model.Cell{Lane: 1, Slot: 1}) {
		t.Error("(1,1) 应已占用")
	}
	if ctx.Occupied() != 4 {
		t.Errorf("Occupied = %d, expected 4", ctx.Occupied())
	}

	others, pallets := ctx.TouchingLoads("A")
	if len(others) != 2 || others[0] != "B" || others[1] != "C" {
		t.Fatalf("TouchingLoads(A) = %v", others)
	}
	if len(pallets["B"]) != 1 || pallets["B"][0] != 1 {
		t.Errorf("与 B 相邻的托盘 = %v, expected [1]", pallets["B"])
	}

	ctx.RemoveLoad("A")
	if ctx.IsOccupied(model.Cell{Lane: 0, Slot: 0}) {
		t.Error("移除后 (0,0) 应空闲")
	}
	if len(ctx.LoadPlacements("A")) != 0 {
		t.Error("移除后 A 不应有托盘")
	}
	if p, ok := ctx.At(model.Cell{Lane: 0, Slot: 2}); !ok || p.LoadID != "C" {
		t.Error("移除 A 后 C 的索引应保持正确")
	}
	if ids := ctx.PlacedLoadIDs(); len(ids) != 2 || ids[0] != "B" {
		t.Errorf("PlacedLoadIDs = %v", ids)
	}
}
