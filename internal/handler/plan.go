package handler

import (
	"net/http"

	"github.com/paiban/loadplan/internal/service"
	"github.com/paiban/loadplan/pkg/planner/solver"
)

// Suggest 按全部策略生成候选方案
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req service.SuggestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	res, err := h.engine.SuggestPlans(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Preview 预览方案，不落盘
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req service.PreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	res, err := h.engine.PreviewPlan(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Apply 应用方案
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req service.ApplyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	res, err := h.engine.ApplyPlan(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Reject 拒绝方案
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req service.RejectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	res, err := h.engine.RejectPlan(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// StrategyInfo 策略说明
type StrategyInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Strategies 列出参与建议的排序策略（按声明顺序）
func (h *Handler) Strategies(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	out := make([]StrategyInfo, 0, len(solver.AllStrategies))
	for _, s := range solver.AllStrategies {
		out = append(out, StrategyInfo{Name: string(s), Description: s.Description()})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"strategies": out})
}
