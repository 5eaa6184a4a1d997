// Package notify 把已提交的账本事件分发给外部订阅者
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/paiban/loadplan/internal/config"
	"github.com/paiban/loadplan/pkg/model"
)

// RecentLimit 每个组织保留的最近事件数
const RecentLimit = 100

// Publisher 事件发布器。发布在状态提交之后进行，失败不影响已提交的结果。
type Publisher interface {
	Publish(ctx context.Context, orgID string, events []model.Event) error
	Close() error
}

// NopPublisher 不发布任何事件
type NopPublisher struct{}

// Publish 空操作
func (NopPublisher) Publish(context.Context, string, []model.Event) error { return nil }

// Close 空操作
func (NopPublisher) Close() error { return nil }

// RedisPublisher 通过 Redis Pub/Sub 发布事件，并维护一个定长的最近事件列表
type RedisPublisher struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisPublisher 按配置连接 Redis
func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisPublisherFromClient(rdb, cfg.ChannelPrefix), nil
}

// NewRedisPublisherFromClient 使用已有客户端
func NewRedisPublisherFromClient(rdb *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "loadplan"
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix, timeout: 2 * time.Second}
}

// Channel 组织的事件频道名
func (p *RedisPublisher) Channel(orgID string) string {
	return p.prefix + ":events:" + orgID
}

// RecentKey 组织的最近事件列表键
func (p *RedisPublisher) RecentKey(orgID string) string {
	return p.prefix + ":recent:" + orgID
}

// Publish 按账本顺序发布事件
func (p *RedisPublisher) Publish(ctx context.Context, orgID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	channel := p.Channel(orgID)
	recent := p.RecentKey(orgID)

	pipe := p.rdb.Pipeline()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("序列化事件 %s 失败: %w", e.ID, err)
		}
		pipe.Publish(ctx, channel, data)
		pipe.LPush(ctx, recent, data)
	}
	pipe.LTrim(ctx, recent, 0, RecentLimit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Recent 读取最近事件，按时间升序
func (p *RedisPublisher) Recent(ctx context.Context, orgID string, limit int) ([]model.Event, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}
	raw, err := p.rdb.LRange(ctx, p.RecentKey(orgID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取最近事件失败: %w", err)
	}

	events := make([]model.Event, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e model.Event
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Ping 检查 Redis 连通性
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close 关闭连接
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
