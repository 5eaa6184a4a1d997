package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paiban/loadplan/pkg/model"
)

// SnapshotVersion 当前快照格式版本
const SnapshotVersion = 1

// Snapshot 持久化的完整状态，每次变更整体重写
type Snapshot struct {
	Version             int                            `json:"version"`
	OrgID               string                         `json:"org_id"`
	SavedAt             time.Time                      `json:"saved_at"`
	TrailerSpecDefaults model.TrailerSpec              `json:"trailer_spec_defaults"`
	Loads               []*model.Load                  `json:"loads"`
	Trailers            []*model.Trailer               `json:"trailers"`
	Events              []model.Event                  `json:"events"`
	AppliedPlans        map[string]*model.ApplyResult  `json:"applied_plans,omitempty"`
	RejectedPlans       map[string]*model.RejectResult `json:"rejected_plans,omitempty"`
}

// Marshal 序列化为 JSON
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化快照失败: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot 解析快照
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("解析快照失败: %w", err)
	}
	if s.Version > SnapshotVersion {
		return nil, fmt.Errorf("快照版本 %d 高于支持的版本 %d", s.Version, SnapshotVersion)
	}
	return &s, nil
}

// Snapshotter 快照存储后端
type Snapshotter interface {
	// Load 读取最近一次快照，不存在时返回 nil, nil
	Load(ctx context.Context) (*Snapshot, error)
	// Save 整体写入快照，成功返回前必须已落盘
	Save(ctx context.Context, s *Snapshot) error
	Name() string
}
