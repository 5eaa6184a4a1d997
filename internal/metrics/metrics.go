// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paiban/loadplan/pkg/model"
)

var (
	// Registry 专用注册表
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loadplan_http_requests_total", Help: "HTTP 请求总数"},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "loadplan_http_request_duration_seconds", Help: "HTTP 请求耗时（秒）", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)

	plansGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loadplan_plans_generated_total", Help: "按策略统计生成的方案数"},
		[]string{"strategy"},
	)
	planDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "loadplan_plan_duration_seconds", Help: "单个策略的规划耗时（秒）", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1}},
		[]string{"strategy"},
	)
	suggestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "loadplan_suggest_duration_seconds", Help: "一次方案建议的总耗时（秒）", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5}},
	)
	violations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loadplan_violations_total", Help: "按类型与级别统计的约束违规"},
		[]string{"type", "severity"},
	)
	lifecycle = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loadplan_plan_lifecycle_total", Help: "方案应用/拒绝结果"},
		[]string{"operation", "outcome"},
	)
	persistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loadplan_persistence_failures_total", Help: "快照持久化失败次数"},
		[]string{"operation"},
	)
	importedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loadplan_import_rows_total", Help: "导入行数（按结果）"},
		[]string{"mode", "result"},
	)
	ledgerSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "loadplan_ledger_events", Help: "账本当前保留的事件数"},
	)
	publishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "loadplan_event_publish_failures_total", Help: "事件发布失败次数"},
	)

	regOnce sync.Once
)

// Register 注册全部指标（可重复调用）
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(
			httpRequests,
			httpDuration,
			plansGenerated,
			planDuration,
			suggestDuration,
			violations,
			lifecycle,
			persistenceFailures,
			importedRows,
			ledgerSize,
			publishFailures,
		)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler 返回指标处理器
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPlanGeneration 记录一次规划
func RecordPlanGeneration(strategy string, duration time.Duration) {
	plansGenerated.WithLabelValues(strategy).Inc()
	planDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordSuggestion 记录一次方案建议
func RecordSuggestion(duration time.Duration) {
	suggestDuration.Observe(duration.Seconds())
}

// RecordViolations 按类型与级别累计违规
func RecordViolations(vs []model.Violation) {
	for i := range vs {
		violations.WithLabelValues(string(vs[i].Type), string(vs[i].Severity)).Inc()
	}
}

// RecordLifecycle 记录应用/拒绝结果（applied/replayed/conflict/error）
func RecordLifecycle(operation, outcome string) {
	lifecycle.WithLabelValues(operation, outcome).Inc()
}

// RecordPersistenceFailure 记录持久化失败
func RecordPersistenceFailure(operation string) {
	persistenceFailures.WithLabelValues(operation).Inc()
}

// RecordImport 记录导入结果
func RecordImport(mode string, imported, updated, skipped, failed int) {
	importedRows.WithLabelValues(mode, "imported").Add(float64(imported))
	importedRows.WithLabelValues(mode, "updated").Add(float64(updated))
	importedRows.WithLabelValues(mode, "skipped").Add(float64(skipped))
	importedRows.WithLabelValues(mode, "error").Add(float64(failed))
}

// SetLedgerSize 设置账本事件数
func SetLedgerSize(n int) {
	ledgerSize.Set(float64(n))
}

// RecordPublishFailure 记录事件发布失败
func RecordPublishFailure() {
	publishFailures.Inc()
}
