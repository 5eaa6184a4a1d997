// Package handler 提供HTTP请求处理器
package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paiban/loadplan/internal/service"
	"github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/logger"
)

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// CheckFunc 依赖健康检查
type CheckFunc func(ctx context.Context) error

// Handler 装载规划处理器
type Handler struct {
	engine         *service.Engine
	build          BuildInfo
	maxUploadBytes int64
	checks         map[string]CheckFunc
}

// NewHandler 创建处理器
func NewHandler(engine *service.Engine, build BuildInfo, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{
		engine:         engine,
		build:          build,
		maxUploadBytes: maxUploadBytes,
		checks:         make(map[string]CheckFunc),
	}
}

// WithCheck 注册健康检查项（如数据库连通性），失败时 /health 返回 503
func (h *Handler) WithCheck(name string, fn CheckFunc) *Handler {
	h.checks[name] = fn
	return h
}

// Register 注册路由
func (h *Handler) Register(mux *http.ServeMux) {
	// 系统端点
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/version", h.Version)

	// 上下文与配置
	mux.HandleFunc("/api/v1/context", h.Context)
	mux.HandleFunc("/api/v1/trailer-spec/defaults", h.TrailerSpecDefaults)

	// 方案生命周期
	mux.HandleFunc("/api/v1/plans/suggest", h.Suggest)
	mux.HandleFunc("/api/v1/plans/preview", h.Preview)
	mux.HandleFunc("/api/v1/plans/apply", h.Apply)
	mux.HandleFunc("/api/v1/plans/reject", h.Reject)
	mux.HandleFunc("/api/v1/strategies", h.Strategies)

	// 事件与导入
	mux.HandleFunc("/api/v1/events", h.Events)
	mux.HandleFunc("/api/v1/loads/import", h.ImportLoads)

	// 约束库 - 返回每种货物约束的含义与后果
	mux.HandleFunc("/api/v1/constraints/library", h.ConstraintLibrary)
}

// Health 健康检查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Store().Current()
	body := map[string]interface{}{
		"status":  "ok",
		"service": "loadplan",
		"backend": h.engine.Store().Backend(),
		"org_id":  st.OrgID,
		"loads":   len(st.Loads),
		"events":  st.Ledger.Len(),
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		body["checks"] = results
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
	}
	respondJSON(w, status, body)
}

// Version 版本信息
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.build)
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    err.Code,
		"message": err.Message,
		"details": err.Details,
		"fields":  err.Fields,
	})
}

// respondErr 将任意错误转换为应用错误后返回
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("请求处理失败")
	}
	respondError(w, appErr)
}

func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		return errors.InvalidInput("body", "请求体过大")
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.CodeTimeout, "请求处理超时")
	}
	return errors.Wrap(err, errors.CodeInternal, "内部错误")
}

// requireMethod 校验请求方法
func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	respondError(w, errors.New(errors.CodeInvalidInput, "仅支持"+strings.Join(methods, ", ")+"方法").
		WithField("method", r.Method))
	return false
}

// decodeJSON 解析请求体，空请求体视为空对象
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return err
		}
		return errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败")
	}
	return nil
}

// parseCursor 解析事件游标（RFC3339，支持纳秒）
func parseCursor(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, errors.InvalidInput("cursor", "必须是RFC3339时间戳")
	}
	return &t, nil
}
