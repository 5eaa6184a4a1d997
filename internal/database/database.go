// Package database 管理快照存储使用的 PostgreSQL 连接与结构迁移
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paiban/loadplan/internal/config"
	"github.com/paiban/loadplan/internal/repository"
	"github.com/paiban/loadplan/pkg/logger"

	_ "github.com/lib/pq" // PostgreSQL 驱动
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
	slowQuery       = 100 * time.Millisecond
)

// DB 数据库连接封装，满足 repository.DB
type DB struct {
	*sql.DB
	cfg *config.DatabaseConfig
}

// New 打开连接池，数据库尚未就绪时按线性退避重试
func New(cfg *config.DatabaseConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			db.Close()
			return nil, fmt.Errorf("数据库连接测试失败（已尝试 %d 次）: %w", attempt, err)
		}
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("数据库暂不可用，稍后重试")
		time.Sleep(connectBackoff * time.Duration(attempt))
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Bool("url", cfg.URL != "").
		Msg("数据库连接成功")

	return &DB{DB: db, cfg: cfg}, nil
}

// Close 关闭数据库连接
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	logger.Info().Msg("关闭数据库连接")
	return db.DB.Close()
}

// Health 连通性检查
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Transaction 在事务中执行 fn，fn 返回错误或 panic 时回滚
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("事务回滚失败: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("事务提交失败: %w", err)
	}
	return nil
}

// Migrate 依次执行未应用的结构变更，每个变更单独一个事务
func (db *DB) Migrate(ctx context.Context) error {
	const ledger = `
		CREATE TABLE IF NOT EXISTS loadplan_schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := db.ExecContext(ctx, ledger); err != nil {
		return fmt.Errorf("创建迁移记录表失败: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range repository.Migrations {
		if applied[m.Version] {
			continue
		}
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO loadplan_schema_migrations (version, name) VALUES ($1, $2)`,
				m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("执行迁移 %d_%s 失败: %w", m.Version, m.Name, err)
		}
		logger.Info().
			Int("version", m.Version).
			Str("name", m.Name).
			Msg("已执行数据库迁移")
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM loadplan_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("读取迁移记录失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("读取迁移记录失败: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// ExecContext 执行SQL语句，记录慢查询
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	defer observe(query, time.Now())
	return db.DB.ExecContext(ctx, query, args...)
}

// QueryContext 执行查询，记录慢查询
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	defer observe(query, time.Now())
	return db.DB.QueryContext(ctx, query, args...)
}

// QueryRowContext 执行单行查询，记录慢查询
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	defer observe(query, time.Now())
	return db.DB.QueryRowContext(ctx, query, args...)
}

func observe(query string, start time.Time) {
	if d := time.Since(start); d > slowQuery {
		logger.Warn().
			Str("query", truncateQuery(query)).
			Dur("duration", d).
			Msg("慢SQL查询")
	}
}

// truncateQuery 截断长查询
func truncateQuery(query string) string {
	if len(query) > 200 {
		return query[:200] + "..."
	}
	return query
}
