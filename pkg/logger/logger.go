// Package logger 基于 zerolog 的结构化日志
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	inited bool
	logger zerolog.Logger
)

// Config 日志配置
type Config struct {
	Level      string    `yaml:"level" json:"level"`
	Format     string    `yaml:"format" json:"format"` // json/console
	Output     string    `yaml:"output" json:"output"` // stdout/stderr/file
	FilePath   string    `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string    `yaml:"time_format,omitempty" json:"time_format,omitempty"`
	Service    string    `yaml:"service,omitempty" json:"service,omitempty"`
	Writer     io.Writer `yaml:"-" json:"-"` // 非空时忽略 Output
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
		Service:    "loadplan",
	}
}

// Init 初始化全局日志器，可重复调用，后一次覆盖前一次
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	if cfg.Service == "" {
		cfg.Service = "loadplan"
	}

	output := cfg.Writer
	if output == nil {
		output = openOutput(cfg)
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	l := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()

	mu.Lock()
	logger = l
	inited = true
	mu.Unlock()
}

func openOutput(cfg Config) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		if cfg.FilePath == "" {
			return os.Stdout
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}

// ParseLevel 解析日志级别，未知值按 info 处理
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器，未初始化时使用默认配置
func Get() *zerolog.Logger {
	mu.RLock()
	if inited {
		l := logger
		mu.RUnlock()
		return &l
	}
	mu.RUnlock()

	Init(DefaultConfig())
	return Get()
}

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	orgIDKey     ctxKey = "org_id"
)

// ContextWithRequestID 写入请求ID
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithOrgID 写入组织ID
func ContextWithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// RequestIDFromContext 读取请求ID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithContext 带上请求ID与组织ID的日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	c := Get().With()
	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		c = c.Str("request_id", reqID)
	}
	if orgID, ok := ctx.Value(orgIDKey).(string); ok && orgID != "" {
		c = c.Str("org_id", orgID)
	}
	l := c.Logger()
	return &l
}

// Component 带组件名的子日志器
func Component(name string) *zerolog.Logger {
	l := Get().With().Str("component", name).Logger()
	return &l
}

// Debug 记录调试日志
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// PlannerLogger 装车规划专用日志器
type PlannerLogger struct {
	base *zerolog.Logger
}

// NewPlannerLogger 创建装车规划日志器
func NewPlannerLogger() *PlannerLogger {
	return &PlannerLogger{base: Component("planner")}
}

// StartPlan 记录规划开始
func (l *PlannerLogger) StartPlan(strategy string, loads, slots int) {
	l.base.Debug().
		Str("strategy", strategy).
		Int("loads", loads).
		Int("slots", slots).
		Msg("开始生成装载方案")
}

// LoadExcluded 记录未装载的货物
func (l *PlannerLogger) LoadExcluded(loadID, violationType, reason string) {
	l.base.Debug().
		Str("load_id", loadID).
		Str("type", violationType).
		Str("reason", reason).
		Msg("货物未装载")
}

// ConstraintViolation 记录约束违规
func (l *PlannerLogger) ConstraintViolation(constraint, severity, details string) {
	l.base.Debug().
		Str("constraint", constraint).
		Str("severity", severity).
		Str("details", details).
		Msg("约束违规")
}

// PlanComplete 记录规划完成
func (l *PlannerLogger) PlanComplete(strategy string, placements, violations int, duration time.Duration) {
	l.base.Debug().
		Str("strategy", strategy).
		Int("placements", placements).
		Int("violations", violations).
		Dur("duration", duration).
		Msg("装载方案生成完成")
}
