package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/importer"
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/geometry"
)

// ApplyRequest 应用方案请求
type ApplyRequest struct {
	PlanID     string
	TrailerID  string
	Strategy   string
	Placements []model.Placement
}

// Apply 应用方案。
// 被引用的每个货物变为 ASSIGNED，逐个追加 LOAD_UPDATED，最后追加一条 PLAN_APPLIED。
// 同一 plan_id 重放时返回首次结果（replayed=true），不产生事件。
func (s *Store) Apply(ctx context.Context, req ApplyRequest) (*model.ApplyResult, []model.Event, error) {
	if len(req.Placements) == 0 {
		return nil, nil, apperrors.InvalidInput("placements", "方案没有可应用的托盘摆放")
	}
	for i := range req.Placements {
		if strings.TrimSpace(req.Placements[i].LoadID) == "" {
			return nil, nil, apperrors.InvalidInput(fmt.Sprintf("placements[%d].load_id", i), "不能为空")
		}
	}
	if req.PlanID == "" {
		req.PlanID = uuid.New().String()
	}

	var result *model.ApplyResult
	_, events, err := s.Mutate(ctx, func(st *State) error {
		if _, ok := st.Rejected[req.PlanID]; ok {
			return apperrors.PlanConflict(req.PlanID, "被拒绝")
		}
		if prior, ok := st.Applied[req.PlanID]; ok {
			result = cloneApply(prior)
			result.Replayed = true
			return errNoop
		}

		var trailer *model.Trailer
		if req.TrailerID != "" {
			if trailer = st.FindTrailer(req.TrailerID); trailer == nil {
				return apperrors.NotFound("trailer", req.TrailerID)
			}
		}

		ids := model.DistinctLoadIDs(req.Placements)
		loads, missing := st.LoadsByID(ids)
		if len(missing) > 0 {
			return apperrors.NotFound("load", missing[0]).
				WithField("missing_load_ids", missing)
		}

		pallets := make(map[string]int, len(ids))
		for i := range req.Placements {
			pallets[req.Placements[i].LoadID]++
		}

		trailerID := ""
		for _, load := range loads {
			load.Status = model.StatusAssigned
			meta := model.JSONMap{
				"plan_id": req.PlanID,
				"status":  load.Status,
				"pallets": pallets[load.ID],
			}
			if trailer != nil {
				trailerID = trailer.ID
				load.Assignment = &model.LoadAssignment{TrailerID: trailer.ID, TrailerUnit: trailer.Unit}
				meta["trailer_id"] = trailer.ID
			}
			st.Ledger.Append(model.Event{
				Type:    model.EventLoadUpdated,
				LoadID:  load.ID,
				Message: fmt.Sprintf("货物 %s 已分配（方案 %s）", load.ID, req.PlanID),
				Meta:    meta,
			})
		}

		applied := st.Ledger.Append(model.Event{
			Type:    model.EventPlanApplied,
			Message: fmt.Sprintf("方案 %s 已应用，涉及 %d 个货物", req.PlanID, len(ids)),
			Meta: model.JSONMap{
				"plan_id":    req.PlanID,
				"trailer_id": trailerID,
				"strategy":   req.Strategy,
				"load_ids":   ids,
				"placements": len(req.Placements),
			},
		})

		result = &model.ApplyResult{
			PlanID:         req.PlanID,
			TrailerID:      trailerID,
			TouchedLoadIDs: ids,
			EventsQueued:   len(ids) + 1,
			AppliedAt:      applied.CreatedAt,
		}
		st.Applied[req.PlanID] = cloneApply(result)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, events, nil
}

// Reject 拒绝方案，只追加一条 PLAN_REJECTED，从不修改货物
func (s *Store) Reject(ctx context.Context, planID, reason string, loadIDs []string) (*model.RejectResult, []model.Event, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return nil, nil, apperrors.InvalidInput("plan_id", "不能为空")
	}
	touched := dedupe(loadIDs)

	var result *model.RejectResult
	_, events, err := s.Mutate(ctx, func(st *State) error {
		if _, ok := st.Applied[planID]; ok {
			return apperrors.PlanConflict(planID, "被应用")
		}
		if prior, ok := st.Rejected[planID]; ok {
			result = cloneReject(prior)
			result.Replayed = true
			return errNoop
		}

		rejected := st.Ledger.Append(model.Event{
			Type:    model.EventPlanRejected,
			Message: fmt.Sprintf("方案 %s 已拒绝", planID),
			Meta: model.JSONMap{
				"plan_id":  planID,
				"reason":   reason,
				"load_ids": touched,
			},
		})

		result = &model.RejectResult{
			PlanID:         planID,
			Reason:         reason,
			TouchedLoadIDs: touched,
			RejectedAt:     rejected.CreatedAt,
		}
		st.Rejected[planID] = cloneReject(result)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, events, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ImportLoads 导入货物。文件解析在锁外完成，合并在锁内完成。
func (s *Store) ImportLoads(ctx context.Context, data []byte, kind importer.Kind, mode importer.Mode) (*importer.Result, []model.Event, error) {
	records, rowErrs, err := importer.Parse(data, kind)
	if err != nil {
		return nil, nil, err
	}

	var result importer.Result
	_, events, err := s.Mutate(ctx, func(st *State) error {
		loads, res := importer.Merge(st.Loads, records, mode)
		res.Errors = importer.JoinErrors(rowErrs, res.Errors)
		st.Loads = loads
		result = res

		st.Ledger.Append(model.Event{
			Type: model.EventLoadsImported,
			Message: fmt.Sprintf("导入货物：新增 %d，更新 %d，跳过 %d，错误 %d",
				res.Imported, res.Updated, res.Skipped, len(res.Errors)),
			Meta: model.JSONMap{
				"kind":        string(kind),
				"mode":        string(mode),
				"imported":    res.Imported,
				"updated":     res.Updated,
				"skipped":     res.Skipped,
				"errors":      len(res.Errors),
				"total_loads": res.TotalLoads,
			},
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &result, events, nil
}

// UpdateDefaults 归一化并保存组织默认挂车规格
func (s *Store) UpdateDefaults(ctx context.Context, patch *model.TrailerSpecPatch) (model.TrailerSpec, []model.Event, error) {
	var spec model.TrailerSpec
	_, events, err := s.Mutate(ctx, func(st *State) error {
		spec = geometry.NormalizeWith(patch, st.Defaults)
		st.Defaults = spec.Clone()

		st.Ledger.Append(model.Event{
			Type:    model.EventTrailerSpecUpdated,
			Message: "默认挂车规格已更新",
			Meta: model.JSONMap{
				"lane_count":         spec.LaneCount,
				"slot_count":         spec.SlotCount,
				"legal_weight_lbs":   spec.LegalWeightLbs,
				"target_forward_pct": spec.TargetForwardPct,
				"segregated_lanes":   spec.SegregatedLanes,
			},
		})
		return nil
	})
	if err != nil {
		return model.TrailerSpec{}, nil, err
	}
	return spec, events, nil
}
