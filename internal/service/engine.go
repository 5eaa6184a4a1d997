// Package service 装载规划对外操作，串联状态存储、规划器、指标与事件分发
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/paiban/loadplan/internal/config"
	"github.com/paiban/loadplan/internal/metrics"
	"github.com/paiban/loadplan/internal/notify"
	"github.com/paiban/loadplan/internal/repository"
	"github.com/paiban/loadplan/internal/store"
	apperrors "github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/importer"
	"github.com/paiban/loadplan/pkg/ledger"
	"github.com/paiban/loadplan/pkg/logger"
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/constraint/builtin"
	"github.com/paiban/loadplan/pkg/planner/geometry"
	"github.com/paiban/loadplan/pkg/planner/scorer"
	"github.com/paiban/loadplan/pkg/planner/solver"
	"github.com/paiban/loadplan/pkg/planner/suggest"
	"github.com/paiban/loadplan/pkg/validator"
)

// publishTimeout 提交后分发事件的超时
const publishTimeout = 3 * time.Second

// Engine 装载规划服务
type Engine struct {
	store     *store.Store
	solver    solver.Solver
	suggester *suggest.Engine
	detector  *validator.ConflictDetector
	publisher notify.Publisher
	strategy  solver.Strategy
}

// New 创建服务，publisher 为 nil 时不分发事件
func New(st *store.Store, publisher notify.Publisher, cfg config.PlannerConfig) *Engine {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	strategy, ok := solver.ParseStrategy(cfg.DefaultStrategy)
	if !ok && cfg.DefaultStrategy != "" {
		logger.Warn().
			Str("strategy", cfg.DefaultStrategy).
			Msg("未知的默认策略，使用 weight_desc")
	}

	s := solver.NewDefaultSolver()
	sc := suggest.DefaultConfig()
	sc.Parallel = cfg.ParallelSuggest
	if cfg.Workers > 0 {
		sc.Workers = cfg.Workers
	}

	e := &Engine{
		store:     st,
		solver:    s,
		suggester: suggest.NewEngine(s, sc),
		detector:  validator.NewConflictDetector(nil),
		publisher: publisher,
		strategy:  strategy,
	}
	metrics.SetLedgerSize(st.Current().Ledger.Len())
	return e
}

// Store 底层状态存储
func (e *Engine) Store() *store.Store {
	return e.store
}

// ContextResult 上下文查询结果
type ContextResult struct {
	OrgID               string            `json:"org_id"`
	Loads               []*model.Load     `json:"loads"`
	Trailers            []*model.Trailer  `json:"trailers"`
	TrailerSpecDefaults model.TrailerSpec `json:"trailer_spec_defaults"`
	TotalLoads          int               `json:"total_loads"`
}

// ListContext 查询货物、挂车与默认规格（只读）
func (e *Engine) ListContext(filter repository.ListFilter, trailerSearch string) *ContextResult {
	st := e.store.Current()

	loads := repository.FilterLoads(st.Loads, filter)
	out := make([]*model.Load, len(loads))
	for i, l := range loads {
		out[i] = l.Clone()
	}
	trailers := repository.FilterTrailers(st.Trailers, trailerSearch)
	outT := make([]*model.Trailer, len(trailers))
	for i, t := range trailers {
		outT[i] = t.Clone()
	}

	return &ContextResult{
		OrgID:               st.OrgID,
		Loads:               out,
		Trailers:            outT,
		TrailerSpecDefaults: st.Defaults.Clone(),
		TotalLoads:          len(st.Loads),
	}
}

// TrailerSpecDefaults 当前默认挂车规格
func (e *Engine) TrailerSpecDefaults() model.TrailerSpec {
	return e.store.Current().Defaults.Clone()
}

// UpdateTrailerSpecDefaults 归一化并保存默认挂车规格
func (e *Engine) UpdateTrailerSpecDefaults(ctx context.Context, patch *model.TrailerSpecPatch) (model.TrailerSpec, error) {
	spec, events, err := e.store.UpdateDefaults(ctx, patch)
	if err != nil {
		e.recordFailure("trailer_spec", err)
		return model.TrailerSpec{}, err
	}
	e.afterCommit(ctx, events)

	logger.WithContext(ctx).Info().
		Int("lane_count", spec.LaneCount).
		Int("slot_count", spec.SlotCount).
		Float64("legal_weight_lbs", spec.LegalWeightLbs).
		Msg("默认挂车规格已更新")
	return spec, nil
}

// SuggestRequest 方案建议请求
type SuggestRequest struct {
	LoadIDs     []string                `json:"load_ids,omitempty"` // 为空时使用全部未分配货物
	TrailerID   string                  `json:"trailer_id,omitempty"`
	TrailerSpec *model.TrailerSpecPatch `json:"trailer_spec,omitempty"`
}

// SuggestResult 方案建议结果
type SuggestResult struct {
	Plans       []*model.Plan     `json:"plans"`
	TrailerSpec model.TrailerSpec `json:"trailer_spec"`
	Duration    string            `json:"duration"`
}

// SuggestPlans 对选定货物按全部策略生成方案并排名
func (e *Engine) SuggestPlans(ctx context.Context, req SuggestRequest) (*SuggestResult, error) {
	st := e.store.Current()

	loads, err := selectLoads(st, req.LoadIDs)
	if err != nil {
		return nil, err
	}
	spec, err := resolveSpec(st, req.TrailerID, req.TrailerSpec)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	plans, err := e.suggester.Suggest(ctx, loads, spec, req.TrailerID)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	metrics.RecordSuggestion(duration)
	for _, p := range plans {
		metrics.RecordPlanGeneration(p.Strategy, duration)
	}
	best := ""
	if len(plans) > 0 {
		best = plans[0].Strategy
		metrics.RecordViolations(plans[0].Violations)
	}

	logger.WithContext(ctx).Info().
		Int("loads", len(loads)).
		Int("plans", len(plans)).
		Str("best_strategy", best).
		Dur("duration", duration).
		Msg("方案建议完成")

	return &SuggestResult{
		Plans:       plans,
		TrailerSpec: spec,
		Duration:    duration.String(),
	}, nil
}

// PreviewRequest 方案预览请求
type PreviewRequest struct {
	PlanID      string                  `json:"plan_id,omitempty"`
	Loads       []*model.Load           `json:"loads,omitempty"`    // 内联货物
	LoadIDs     []string                `json:"load_ids,omitempty"` // 或引用已有货物
	TrailerID   string                  `json:"trailer_id,omitempty"`
	TrailerSpec *model.TrailerSpecPatch `json:"trailer_spec,omitempty"`
	Strategy    string                  `json:"strategy,omitempty"`
	Placements  []model.Placement       `json:"placements,omitempty"` // 为空时自动生成
	Violations  []model.Violation       `json:"violations,omitempty"` // 提供时直接参与评分
}

// PreviewResult 方案预览结果
type PreviewResult struct {
	PlanID      string               `json:"plan_id,omitempty"`
	Strategy    string               `json:"strategy,omitempty"`
	Generated   bool                 `json:"generated"` // 托盘位置是否由引擎生成
	TrailerSpec model.TrailerSpec    `json:"trailer_spec"`
	Placements  []model.Placement    `json:"placements"`
	Violations  []model.Violation    `json:"violations"`
	Conflicts   []validator.Conflict `json:"conflicts"`
	Summary     model.Summary        `json:"summary"`
	Notes       []string             `json:"notes"`
}

// PreviewPlan 预览方案：未提供托盘位置时确定性生成，否则校验并评分。纯计算，不落盘。
func (e *Engine) PreviewPlan(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	st := e.store.Current()

	loads := req.Loads
	if len(loads) == 0 {
		if len(req.LoadIDs) == 0 && len(req.Placements) > 0 {
			req.LoadIDs = model.DistinctLoadIDs(req.Placements)
		}
		var err error
		if loads, err = selectLoads(st, req.LoadIDs); err != nil {
			return nil, err
		}
	} else if err := validateInlineLoads(loads); err != nil {
		return nil, err
	}

	spec, err := resolveSpec(st, req.TrailerID, req.TrailerSpec)
	if err != nil {
		return nil, err
	}

	res := &PreviewResult{
		PlanID:      req.PlanID,
		TrailerSpec: spec,
		Conflicts:   make([]validator.Conflict, 0),
	}

	if len(req.Placements) == 0 {
		strategy := e.strategy
		if req.Strategy != "" {
			s, ok := solver.ParseStrategy(req.Strategy)
			if !ok {
				return nil, apperrors.InvalidInput("strategy", "未知策略: "+req.Strategy)
			}
			strategy = s
		}
		start := time.Now()
		plan := suggest.BuildPlan(e.solver, loads, spec, strategy, req.TrailerID)
		metrics.RecordPlanGeneration(plan.Strategy, time.Since(start))

		res.Generated = true
		res.Strategy = plan.Strategy
		if res.PlanID == "" {
			res.PlanID = plan.PlanID
		}
		res.Placements = plan.Placements
		res.Violations = plan.Violations
		res.Summary = plan.Summary
	} else {
		res.Strategy = req.Strategy
		res.Placements = req.Placements
		res.Conflicts = e.detector.DetectAll(req.Placements, loads, spec)
		res.Violations = mergeViolations(req.Violations, builtin.Evaluate(loads, req.Placements, spec))
		res.Summary = scorer.Score(loads, req.Placements, spec, res.Violations)
	}
	if res.Violations == nil {
		res.Violations = make([]model.Violation, 0)
	}

	res.Notes = scorer.Notes(res.Summary)
	if n := countErrors(res.Conflicts); n > 0 {
		res.Notes = append([]string{conflictNote(n)}, res.Notes...)
	}
	metrics.RecordViolations(res.Violations)

	logger.WithContext(ctx).Debug().
		Str("plan_id", res.PlanID).
		Bool("generated", res.Generated).
		Int("placements", len(res.Placements)).
		Int("violations", len(res.Violations)).
		Int("conflicts", len(res.Conflicts)).
		Msg("方案预览")
	return res, nil
}

// ApplyRequest 应用方案请求
type ApplyRequest struct {
	PlanID     string            `json:"plan_id,omitempty"`
	TrailerID  string            `json:"trailer_id,omitempty"`
	Strategy   string            `json:"strategy,omitempty"`
	Placements []model.Placement `json:"placements"`
}

// ApplyPlan 应用方案
func (e *Engine) ApplyPlan(ctx context.Context, req ApplyRequest) (*model.ApplyResult, error) {
	res, events, err := e.store.Apply(ctx, store.ApplyRequest{
		PlanID:     req.PlanID,
		TrailerID:  req.TrailerID,
		Strategy:   req.Strategy,
		Placements: req.Placements,
	})
	if err != nil {
		e.recordFailure("apply", err)
		return nil, err
	}

	outcome := "applied"
	if res.Replayed {
		outcome = "replayed"
	}
	metrics.RecordLifecycle("apply", outcome)
	e.afterCommit(ctx, events)

	logger.WithContext(ctx).Info().
		Str("plan_id", res.PlanID).
		Str("trailer_id", res.TrailerID).
		Int("loads", len(res.TouchedLoadIDs)).
		Bool("replayed", res.Replayed).
		Msg("方案已应用")
	return res, nil
}

// RejectRequest 拒绝方案请求
type RejectRequest struct {
	PlanID  string   `json:"plan_id"`
	Reason  string   `json:"reason,omitempty"`
	LoadIDs []string `json:"load_ids,omitempty"`
}

// RejectPlan 拒绝方案，不修改任何货物
func (e *Engine) RejectPlan(ctx context.Context, req RejectRequest) (*model.RejectResult, error) {
	res, events, err := e.store.Reject(ctx, req.PlanID, req.Reason, req.LoadIDs)
	if err != nil {
		e.recordFailure("reject", err)
		return nil, err
	}

	outcome := "rejected"
	if res.Replayed {
		outcome = "replayed"
	}
	metrics.RecordLifecycle("reject", outcome)
	e.afterCommit(ctx, events)

	logger.WithContext(ctx).Info().
		Str("plan_id", res.PlanID).
		Str("reason", res.Reason).
		Bool("replayed", res.Replayed).
		Msg("方案已拒绝")
	return res, nil
}

// ListEvents 按游标分页读取事件
func (e *Engine) ListEvents(cursor *time.Time, limit int) ledger.Page {
	return e.store.Current().Ledger.Read(cursor, limit)
}

// ImportLoads 导入货物文件
func (e *Engine) ImportLoads(ctx context.Context, data []byte, kind importer.Kind, mode importer.Mode) (*importer.Result, error) {
	res, events, err := e.store.ImportLoads(ctx, data, kind, mode)
	if err != nil {
		e.recordFailure("import", err)
		return nil, err
	}
	metrics.RecordImport(string(mode), res.Imported, res.Updated, res.Skipped, len(res.Errors))
	e.afterCommit(ctx, events)

	logger.WithContext(ctx).Info().
		Str("kind", string(kind)).
		Str("mode", string(mode)).
		Int("imported", res.Imported).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("errors", len(res.Errors)).
		Int("total_loads", res.TotalLoads).
		Msg("货物导入完成")
	return res, nil
}

// afterCommit 提交成功后更新指标并分发事件，分发失败不影响结果
func (e *Engine) afterCommit(ctx context.Context, events []model.Event) {
	st := e.store.Current()
	metrics.SetLedgerSize(st.Ledger.Len())
	if len(events) == 0 {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(pctx, st.OrgID, events); err != nil {
		metrics.RecordPublishFailure()
		logger.WithContext(ctx).Warn().
			Err(err).
			Int("events", len(events)).
			Msg("事件分发失败")
	}
}

// recordFailure 记录生命周期失败指标
func (e *Engine) recordFailure(operation string, err error) {
	switch apperrors.GetCode(err) {
	case apperrors.CodePersistenceFailure:
		metrics.RecordPersistenceFailure(operation)
		logger.Error().Err(err).Str("operation", operation).Msg("状态持久化失败")
	case apperrors.CodePlanConflict:
		metrics.RecordLifecycle(operation, "conflict")
		return
	}
	if operation == "apply" || operation == "reject" {
		metrics.RecordLifecycle(operation, "error")
	}
}

// selectLoads 按ID选取货物，ids 为空时选取全部未分配货物
func selectLoads(st *store.State, ids []string) ([]*model.Load, error) {
	if len(ids) == 0 {
		loads := make([]*model.Load, 0, len(st.Loads))
		for _, l := range st.Loads {
			if !l.IsAssigned() {
				loads = append(loads, l.Clone())
			}
		}
		if len(loads) == 0 {
			return nil, apperrors.InvalidInput("loads", "至少需要一个货物")
		}
		return loads, nil
	}

	found, missing := st.LoadsByID(dedupe(ids))
	if len(missing) > 0 {
		return nil, apperrors.NotFound("load", missing[0]).WithField("missing_load_ids", missing)
	}
	loads := make([]*model.Load, len(found))
	for i, l := range found {
		loads[i] = l.Clone()
	}
	return loads, nil
}

// resolveSpec 组织默认规格 → 挂车规格 → 请求覆盖，逐层叠加后归一化
func resolveSpec(st *store.State, trailerID string, patch *model.TrailerSpecPatch) (model.TrailerSpec, error) {
	var layered *model.TrailerSpecPatch
	if trailerID != "" {
		t := st.FindTrailer(trailerID)
		if t == nil {
			return model.TrailerSpec{}, apperrors.NotFound("trailer", trailerID)
		}
		layered = t.Spec
	}
	layered = layered.Overlay(patch)
	return geometry.NormalizeWith(layered, st.Defaults), nil
}

func validateInlineLoads(loads []*model.Load) error {
	ve := &apperrors.ValidationErrors{}
	seen := make(map[string]bool, len(loads))
	for i, l := range loads {
		if l == nil {
			ve.Add(indexField(i), "不能为空")
			continue
		}
		for _, msg := range l.Validate() {
			ve.Add(indexField(i), msg)
		}
		if l.ID != "" && seen[l.ID] {
			ve.Add(indexField(i), "重复的货物ID "+l.ID)
		}
		seen[l.ID] = true
	}
	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// mergeViolations 调用方提供的违规在前，重新评估得到的违规按 (类型, 货物, 托盘) 去重后追加
func mergeViolations(supplied, evaluated []model.Violation) []model.Violation {
	merged := make([]model.Violation, 0, len(supplied)+len(evaluated))
	seen := make(map[string]bool, len(supplied))
	for _, v := range supplied {
		seen[violationKey(v)] = true
		merged = append(merged, v)
	}
	for _, v := range evaluated {
		if seen[violationKey(v)] {
			continue
		}
		seen[violationKey(v)] = true
		merged = append(merged, v)
	}
	return merged
}

func violationKey(v model.Violation) string {
	return fmt.Sprintf("%s|%s|%v", v.Type, v.LoadID, v.PalletIndices)
}

func countErrors(cs []validator.Conflict) int {
	n := 0
	for _, c := range cs {
		if c.IsError() {
			n++
		}
	}
	return n
}

func conflictNote(n int) string {
	return fmt.Sprintf("提供的托盘位置存在 %d 处结构性冲突", n)
}

func indexField(i int) string {
	return fmt.Sprintf("loads[%d]", i)
}
