// Package model 定义装车引擎的核心数据模型
package model

import (
	"encoding/json"
	"strings"
)

// Severity 违规严重程度（有序：low < warning < high < critical）
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllSeverities 按严重程度升序排列
var AllSeverities = []Severity{SeverityLow, SeverityWarning, SeverityHigh, SeverityCritical}

// Rank 返回严重程度的序号，未知值为 -1
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityWarning:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast 是否不低于给定严重程度
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity 解析严重程度，无法识别时返回 warning
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "info":
		return SeverityLow
	case "high", "error":
		return SeverityHigh
	case "critical", "fatal":
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// UnmarshalJSON 兼容大小写及别名
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

// JSONMap 用于存储 JSONB 数据
type JSONMap map[string]interface{}

// Clone 浅拷贝
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
