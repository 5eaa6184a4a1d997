package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration 一次结构变更，按 Version 升序执行
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations 快照存储的全部结构变更
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "create_snapshots",
		SQL: `
			CREATE TABLE IF NOT EXISTS loadplan_snapshots (
				org_id     TEXT PRIMARY KEY,
				payload    JSONB NOT NULL,
				version    BIGINT NOT NULL DEFAULT 1,
				updated_at TIMESTAMPTZ NOT NULL
			)
		`,
	},
	{
		Version: 2,
		Name:    "snapshot_counters",
		SQL: `
			ALTER TABLE loadplan_snapshots
				ADD COLUMN IF NOT EXISTS load_count  INTEGER NOT NULL DEFAULT 0,
				ADD COLUMN IF NOT EXISTS event_count INTEGER NOT NULL DEFAULT 0
		`,
	},
}

// SnapshotRow 快照行
type SnapshotRow struct {
	OrgID      string
	Payload    []byte
	Version    int64
	LoadCount  int
	EventCount int
	UpdatedAt  time.Time
}

// SnapshotRepository 每个组织一行的状态快照仓储
type SnapshotRepository struct {
	db  DB
	now func() time.Time
}

// NewSnapshotRepository 创建快照仓储
func NewSnapshotRepository(db DB) *SnapshotRepository {
	return &SnapshotRepository{db: db, now: time.Now}
}

// Get 读取组织快照，不存在时返回 nil
func (r *SnapshotRepository) Get(ctx context.Context, orgID string) (*SnapshotRow, error) {
	query := `
		SELECT org_id, payload, version, load_count, event_count, updated_at
		FROM loadplan_snapshots
		WHERE org_id = $1
	`

	row := &SnapshotRow{}
	err := r.db.QueryRowContext(ctx, query, orgID).Scan(
		&row.OrgID, &row.Payload, &row.Version, &row.LoadCount, &row.EventCount, &row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询组织 %s 的快照失败: %w", orgID, err)
	}
	return row, nil
}

// Upsert 整体覆盖组织快照并递增版本号
func (r *SnapshotRepository) Upsert(ctx context.Context, row SnapshotRow) error {
	if row.OrgID == "" {
		return fmt.Errorf("写入快照失败: 缺少组织ID")
	}
	query := `
		INSERT INTO loadplan_snapshots (org_id, payload, version, load_count, event_count, updated_at)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (org_id) DO UPDATE
		SET payload     = EXCLUDED.payload,
		    version     = loadplan_snapshots.version + 1,
		    load_count  = EXCLUDED.load_count,
		    event_count = EXCLUDED.event_count,
		    updated_at  = EXCLUDED.updated_at
	`

	updatedAt := row.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	result, err := r.db.ExecContext(ctx, query,
		row.OrgID, row.Payload, row.LoadCount, row.EventCount, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("写入组织 %s 的快照失败: %w", row.OrgID, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("写入组织 %s 的快照失败: 未影响任何行", row.OrgID)
	}
	return nil
}
