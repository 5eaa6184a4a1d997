package store

import (
	"context"
	"errors"
	"sync"
)

// ErrInjectedFailure 内存存储被设置为失败时返回
var ErrInjectedFailure = errors.New("injected snapshot failure")

// MemorySnapshotter 内存快照存储，用于测试和不需要持久化的部署
type MemorySnapshotter struct {
	mu       sync.Mutex
	data     []byte
	saves    int
	failNext int
}

// NewMemorySnapshotter 创建内存快照存储
func NewMemorySnapshotter() *MemorySnapshotter {
	return &MemorySnapshotter{}
}

// Name 后端名称
func (m *MemorySnapshotter) Name() string { return "memory" }

// FailNext 让接下来 n 次 Save 失败
func (m *MemorySnapshotter) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Saves 成功保存的次数
func (m *MemorySnapshotter) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Load 读取快照（每次返回独立副本）
func (m *MemorySnapshotter) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return UnmarshalSnapshot(m.data)
}

// Save 保存快照
func (m *MemorySnapshotter) Save(ctx context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return ErrInjectedFailure
	}
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}
