package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	apperrors "github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/importer"
	"github.com/paiban/loadplan/pkg/model"
)

func newTestStore(t *testing.T, snap Snapshotter) *Store {
	t.Helper()
	if snap == nil {
		snap = NewMemorySnapshotter()
	}
	s, err := Open(context.Background(), Options{
		OrgID:       "org-test",
		Snapshotter: snap,
		Trailers: []*model.Trailer{
			{ID: "T1", Unit: "53-1001", Name: "Dry Van"},
		},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	csvData := "id,pallets,weight\nL1,2,2000\nL2,1,800\nL3,3,2400\n"
	if _, _, err := s.ImportLoads(context.Background(), []byte(csvData), importer.KindCSV, importer.ModeReplace); err != nil {
		t.Fatalf("seed import failed: %v", err)
	}
	return s
}

func threePlacements() []model.Placement {
	return []model.Placement{
		{LoadID: "L1", PalletIndex: 0, LaneIndex: 0, SlotIndex: 0, WeightLbs: 1000},
		{LoadID: "L1", PalletIndex: 1, LaneIndex: 0, SlotIndex: 1, WeightLbs: 1000},
		{LoadID: "L2", PalletIndex: 0, LaneIndex: 1, SlotIndex: 0, WeightLbs: 800},
	}
}

func TestStore_ApplyEmitsEventsInOrder(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	result, events, err := s.Apply(ctx, ApplyRequest{PlanID: "P1", TrailerID: "T1", Placements: threePlacements()})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(result.TouchedLoadIDs) != 2 || result.TouchedLoadIDs[0] != "L1" || result.TouchedLoadIDs[1] != "L2" {
		t.Errorf("touched = %v, expected [L1 L2]", result.TouchedLoadIDs)
	}
	if result.EventsQueued != 3 {
		t.Errorf("events_queued = %d, expected 3", result.EventsQueued)
	}

	wantTypes := []model.EventType{model.EventLoadUpdated, model.EventLoadUpdated, model.EventPlanApplied}
	if len(events) != len(wantTypes) {
		t.Fatalf("events = %d, expected %d", len(events), len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("events[%d].type = %s, expected %s", i, events[i].Type, want)
		}
	}
	if events[0].LoadID != "L1" || events[1].LoadID != "L2" {
		t.Errorf("LOAD_UPDATED 顺序错误: %s, %s", events[0].LoadID, events[1].LoadID)
	}

	st := s.Current()
	for _, id := range []string{"L1", "L2"} {
		l := st.FindLoad(id)
		if l.Status != model.StatusAssigned {
			t.Errorf("%s status = %q, expected ASSIGNED", id, l.Status)
		}
		if l.Assignment == nil || l.Assignment.TrailerID != "T1" || l.Assignment.TrailerUnit != "53-1001" {
			t.Errorf("%s assignment = %+v", id, l.Assignment)
		}
	}
	if l3 := st.FindLoad("L3"); l3.Status != "" || l3.Assignment != nil {
		t.Errorf("L3 不应被修改: %+v", l3)
	}
}

func TestStore_ApplyEmptyPlan(t *testing.T) {
	s := newTestStore(t, nil)
	before := s.Current().Ledger.Len()

	_, _, err := s.Apply(context.Background(), ApplyRequest{PlanID: "P0"})
	if !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Fatalf("error = %v, expected INVALID_INPUT", err)
	}
	if s.Current().Ledger.Len() != before {
		t.Error("空方案不应产生事件")
	}
}

func TestStore_ApplyUnknownReferences(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ApplyRequest
	}{
		{"未知挂车", ApplyRequest{PlanID: "P1", TrailerID: "T404", Placements: threePlacements()}},
		{"未知货物", ApplyRequest{PlanID: "P2", Placements: []model.Placement{
			{LoadID: "L1", WeightLbs: 1000},
			{LoadID: "L404", WeightLbs: 10},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Apply(ctx, tt.req)
			if !apperrors.Is(err, apperrors.CodeNotFound) {
				t.Fatalf("error = %v, expected NOT_FOUND", err)
			}
			// 原子性：L1 不应被部分修改
			if l1 := s.Current().FindLoad("L1"); l1.Status != "" {
				t.Errorf("L1 status = %q, expected unchanged", l1.Status)
			}
		})
	}
}

func TestStore_ApplyIdempotent(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	first, _, err := s.Apply(ctx, ApplyRequest{PlanID: "P1", Placements: threePlacements()})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	size := s.Current().Ledger.Len()

	second, events, err := s.Apply(ctx, ApplyRequest{PlanID: "P1", Placements: threePlacements()})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Replayed || first.Replayed {
		t.Errorf("replayed flags = %v/%v, expected false/true", first.Replayed, second.Replayed)
	}
	if len(events) != 0 || s.Current().Ledger.Len() != size {
		t.Error("重放不应追加事件")
	}
	if !second.AppliedAt.Equal(first.AppliedAt) {
		t.Errorf("applied_at = %v, expected %v", second.AppliedAt, first.AppliedAt)
	}
}

func TestStore_RejectNeverMutatesLoads(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	before := s.Current()

	result, events, err := s.Reject(ctx, "P9", "轴荷不合格", []string{"L1", "L2", "L1", ""})
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if len(result.TouchedLoadIDs) != 2 {
		t.Errorf("touched = %v, expected [L1 L2]", result.TouchedLoadIDs)
	}
	if len(events) != 1 || events[0].Type != model.EventPlanRejected {
		t.Fatalf("events = %+v, expected one PLAN_REJECTED", events)
	}

	after := s.Current()
	for i, l := range after.Loads {
		prev := before.Loads[i]
		if l.Status != prev.Status || (l.Assignment == nil) != (prev.Assignment == nil) {
			t.Errorf("%s 被拒绝操作修改", l.ID)
		}
	}

	replay, events, err := s.Reject(ctx, "P9", "again", nil)
	if err != nil || !replay.Replayed || len(events) != 0 {
		t.Errorf("reject replay = %+v, %v, events=%d", replay, err, len(events))
	}
}

func TestStore_ApplyRejectConflict(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, _, err := s.Reject(ctx, "PR", "no", nil); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if _, _, err := s.Apply(ctx, ApplyRequest{PlanID: "PR", Placements: threePlacements()}); !apperrors.Is(err, apperrors.CodePlanConflict) {
		t.Errorf("apply after reject error = %v, expected PLAN_CONFLICT", err)
	}

	if _, _, err := s.Apply(ctx, ApplyRequest{PlanID: "PA", Placements: threePlacements()}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, _, err := s.Reject(ctx, "PA", "late", nil); !apperrors.Is(err, apperrors.CodePlanConflict) {
		t.Errorf("reject after apply error = %v, expected PLAN_CONFLICT", err)
	}
}

func TestStore_PersistenceFailureRollsBack(t *testing.T) {
	snap := NewMemorySnapshotter()
	s := newTestStore(t, snap)
	ctx := context.Background()
	before := s.Current()
	size := before.Ledger.Len()

	snap.FailNext(10)
	_, _, err := s.Apply(ctx, ApplyRequest{PlanID: "P1", Placements: threePlacements()})
	if !apperrors.Is(err, apperrors.CodePersistenceFailure) {
		t.Fatalf("error = %v, expected PERSISTENCE_FAILURE", err)
	}

	after := s.Current()
	if after != before {
		t.Error("持久化失败后状态不应被替换")
	}
	if after.Ledger.Len() != size {
		t.Error("持久化失败后不应保留事件")
	}
	if after.FindLoad("L1").Status != "" {
		t.Error("持久化失败后货物不应被修改")
	}
	if _, ok := after.Applied["P1"]; ok {
		t.Error("持久化失败后方案不应记录为已应用")
	}

	// 恢复后同一方案可以正常应用
	snap.FailNext(0)
	if _, _, err := s.Apply(ctx, ApplyRequest{PlanID: "P1", Placements: threePlacements()}); err != nil {
		t.Fatalf("Apply after recovery failed: %v", err)
	}
}

func TestStore_PersistRetries(t *testing.T) {
	snap := NewMemorySnapshotter()
	s, err := Open(context.Background(), Options{OrgID: "o", Snapshotter: snap, PersistRetries: 2})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	snap.FailNext(2)
	if _, _, err := s.UpdateDefaults(context.Background(), nil); err != nil {
		t.Fatalf("重试内应成功: %v", err)
	}
	if snap.Saves() != 1 {
		t.Errorf("saves = %d, expected 1", snap.Saves())
	}
}

func TestStore_UpdateDefaults(t *testing.T) {
	s := newTestStore(t, nil)
	lanes := 3
	slots := 30

	spec, events, err := s.UpdateDefaults(context.Background(), &model.TrailerSpecPatch{LaneCount: &lanes, SlotCount: &slots})
	if err != nil {
		t.Fatalf("UpdateDefaults failed: %v", err)
	}
	if spec.LaneCount != 3 || spec.SlotCount != 30 || spec.LegalWeightLbs <= 0 {
		t.Errorf("spec = %+v", spec)
	}
	if len(events) != 1 || events[0].Type != model.EventTrailerSpecUpdated {
		t.Errorf("events = %+v", events)
	}

	// 后续部分更新以当前默认值为基础
	legal := 40000.0
	spec, _, err = s.UpdateDefaults(context.Background(), &model.TrailerSpecPatch{LegalWeightLbs: &legal})
	if err != nil {
		t.Fatalf("UpdateDefaults failed: %v", err)
	}
	if spec.LaneCount != 3 || spec.LegalWeightLbs != 40000 {
		t.Errorf("spec = %+v, expected lanes=3 legal=40000", spec)
	}
}

func TestStore_ImportEvent(t *testing.T) {
	s := newTestStore(t, nil)

	result, events, err := s.ImportLoads(context.Background(), []byte("id,pallets,weight\nL4,1,100\nL1,5,5000\n"), importer.KindCSV, importer.ModeUpsert)
	if err != nil {
		t.Fatalf("ImportLoads failed: %v", err)
	}
	if result.Imported != 1 || result.Updated != 1 || result.TotalLoads != 4 {
		t.Errorf("result = %+v", result)
	}
	if len(events) != 1 || events[0].Type != model.EventLoadsImported {
		t.Errorf("events = %+v", events)
	}
	if s.Current().FindLoad("L1").Pallets != 5 {
		t.Error("L1 应被更新")
	}
}

func TestStore_ImportNonFiniteWeightIsRowError(t *testing.T) {
	s := newTestStore(t, nil)

	data := []byte("id,pallets,weight\nN1,2,NaN\nN2,2,Inf\nL9,2,100\n")
	result, _, err := s.ImportLoads(context.Background(), data, importer.KindCSV, importer.ModeAppend)
	if err != nil {
		t.Fatalf("ImportLoads failed: %v", err)
	}
	if result.Imported != 1 || len(result.Errors) != 2 {
		t.Errorf("result = %+v, expected 1 imported and 2 row errors", result)
	}
	if s.Current().FindLoad("L9") == nil {
		t.Error("L9 应已导入")
	}
	if s.Current().FindLoad("N1") != nil || s.Current().FindLoad("N2") != nil {
		t.Error("非有限重量的行不应导入")
	}
}

func TestStore_FileSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "loadplan.json")
	fs, err := NewFileSnapshotter(path)
	if err != nil {
		t.Fatalf("NewFileSnapshotter failed: %v", err)
	}

	s := newTestStore(t, fs)
	if _, _, err := s.Apply(context.Background(), ApplyRequest{PlanID: "P1", TrailerID: "T1", Placements: threePlacements()}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("第二次写入后应存在备份文件: %v", err)
	}

	reopened, err := Open(context.Background(), Options{OrgID: "org-test", Snapshotter: fs})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	st := reopened.Current()
	if len(st.Loads) != 3 || st.FindLoad("L1").Status != model.StatusAssigned {
		t.Errorf("恢复的货物不正确: %+v", st.Loads)
	}
	if len(st.Trailers) != 1 {
		t.Errorf("trailers = %d, expected 1", len(st.Trailers))
	}
	if st.Ledger.Len() != s.Current().Ledger.Len() {
		t.Errorf("events = %d, expected %d", st.Ledger.Len(), s.Current().Ledger.Len())
	}

	// 恢复后重放仍然幂等
	replay, _, err := reopened.Apply(context.Background(), ApplyRequest{PlanID: "P1", Placements: threePlacements()})
	if err != nil || !replay.Replayed {
		t.Errorf("replay after reopen = %+v, %v", replay, err)
	}

	// 新事件时间晚于恢复的事件
	_, events, err := reopened.Reject(context.Background(), "P2", "", nil)
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	all := reopened.Current().Ledger.All()
	if !events[0].CreatedAt.After(all[len(all)-2].CreatedAt) {
		t.Error("恢复后的账本时钟应保持单调")
	}
}

func TestFileSnapshotter_FallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loadplan.json")
	fs, err := NewFileSnapshotter(path)
	if err != nil {
		t.Fatalf("NewFileSnapshotter failed: %v", err)
	}
	s := newTestStore(t, fs)
	if _, _, err := s.Reject(context.Background(), "P1", "", nil); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap == nil || len(snap.Loads) != 3 {
		t.Errorf("应从备份恢复 3 个货物, got %+v", snap)
	}
}

func TestFileSnapshotter_Missing(t *testing.T) {
	fs, err := NewFileSnapshotter(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatal(err)
	}
	snap, err := fs.Load(context.Background())
	if err != nil || snap != nil {
		t.Errorf("Load() = %v, %v, expected nil, nil", snap, err)
	}
}

func TestStore_ConcurrentReadersSeeWholeApply(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	partial := make(chan string, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			st := s.Current()
			l1 := st.FindLoad("L1").Status == model.StatusAssigned
			l2 := st.FindLoad("L2").Status == model.StatusAssigned
			if l1 != l2 {
				select {
				case partial <- "读到部分应用的方案":
				default:
				}
				return
			}
		}
	}()

	if _, _, err := s.Apply(ctx, ApplyRequest{PlanID: "P1", Placements: threePlacements()}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-partial:
		t.Error(msg)
	default:
	}
}
