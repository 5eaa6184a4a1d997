package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Config{Level: level, Format: "json", Writer: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })
	return &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("日志不是 JSON: %v, raw=%s", err, buf.String())
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, expected %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithContext_Fields(t *testing.T) {
	buf := capture(t, "info")

	ctx := ContextWithOrgID(ContextWithRequestID(context.Background(), "req-1"), "org-1")
	WithContext(ctx).Info().Msg("hello")

	m := lastLine(t, buf)
	if m["request_id"] != "req-1" || m["org_id"] != "org-1" {
		t.Errorf("fields = %v", m)
	}
	if m["service"] != "loadplan" {
		t.Errorf("service = %v, expected loadplan", m["service"])
	}
	if RequestIDFromContext(ctx) != "req-1" {
		t.Errorf("RequestIDFromContext = %q", RequestIDFromContext(ctx))
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "warn")

	Info().Msg("被过滤")
	if buf.Len() != 0 {
		t.Fatalf("warn 级别下不应输出 info: %s", buf.String())
	}
	Warn().Msg("保留")
	if m := lastLine(t, buf); m["message"] != "保留" {
		t.Errorf("message = %v", m["message"])
	}
}

func TestPlannerLogger_Component(t *testing.T) {
	buf := capture(t, "debug")

	NewPlannerLogger().LoadExcluded("L2", "split", "没有连续空位")

	m := lastLine(t, buf)
	if m["component"] != "planner" || m["load_id"] != "L2" || m["type"] != "split" {
		t.Errorf("fields = %v", m)
	}
}
