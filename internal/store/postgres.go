package store

import (
	"context"
	"fmt"

	"github.com/paiban/loadplan/internal/repository"
)

// PostgresSnapshotter 每个组织一行 JSONB 快照
type PostgresSnapshotter struct {
	repo  *repository.SnapshotRepository
	orgID string
}

// NewPostgresSnapshotter 创建 Postgres 快照存储
func NewPostgresSnapshotter(db repository.DB, orgID string) *PostgresSnapshotter {
	return &PostgresSnapshotter{
		repo:  repository.NewSnapshotRepository(db),
		orgID: orgID,
	}
}

// Name 后端名称
func (p *PostgresSnapshotter) Name() string { return "postgres" }

// Load 读取组织快照
func (p *PostgresSnapshotter) Load(ctx context.Context) (*Snapshot, error) {
	row, err := p.repo.Get(ctx, p.orgID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	snap, err := UnmarshalSnapshot(row.Payload)
	if err != nil {
		return nil, fmt.Errorf("组织 %s 的快照 (version=%d) 无法解析: %w", p.orgID, row.Version, err)
	}
	return snap, nil
}

// Save 单条 upsert，语句本身是原子的
func (p *PostgresSnapshotter) Save(ctx context.Context, s *Snapshot) error {
	payload, err := s.Marshal()
	if err != nil {
		return err
	}
	return p.repo.Upsert(ctx, repository.SnapshotRow{
		OrgID:      p.orgID,
		Payload:    payload,
		LoadCount:  len(s.Loads),
		EventCount: len(s.Events),
		UpdatedAt:  s.SavedAt,
	})
}
