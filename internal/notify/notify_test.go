package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/paiban/loadplan/pkg/model"
)

func newTestPublisher(t *testing.T) (*RedisPublisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisPublisherFromClient(rdb, "test"), rdb
}

func sampleEvents() []model.Event {
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	return []model.Event{
		{ID: "e1", CreatedAt: base, Type: model.EventLoadUpdated, LoadID: "L1"},
		{ID: "e2", CreatedAt: base.Add(time.Microsecond), Type: model.EventPlanApplied, Meta: model.JSONMap{"plan_id": "P1"}},
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	pub, rdb := newTestPublisher(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, pub.Channel("org-1"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	ch := sub.Channel()

	if err := pub.Publish(ctx, "org-1", sampleEvents()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, wantID := range []string{"e1", "e2"} {
		select {
		case msg := <-ch:
			var e model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				t.Fatalf("payload 解析失败: %v", err)
			}
			if e.ID != wantID {
				t.Errorf("event id = %s, expected %s", e.ID, wantID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("等待事件 %s 超时", wantID)
		}
	}
}

func TestRedisPublisher_Recent(t *testing.T) {
	pub, _ := newTestPublisher(t)
	ctx := context.Background()

	if err := pub.Publish(ctx, "org-1", sampleEvents()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	events, err := pub.Recent(ctx, "org-1", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 2 || events[0].ID != "e1" || events[1].ID != "e2" {
		t.Errorf("recent = %+v, expected [e1 e2]", events)
	}

	// 其他组织互不影响
	other, err := pub.Recent(ctx, "org-2", 10)
	if err != nil || len(other) != 0 {
		t.Errorf("org-2 recent = %v, %v", other, err)
	}
}

func TestRedisPublisher_RecentIsCapped(t *testing.T) {
	pub, _ := newTestPublisher(t)
	ctx := context.Background()

	events := make([]model.Event, RecentLimit+20)
	for i := range events {
		events[i] = model.Event{ID: fmt.Sprintf("e%03d", i), Type: model.EventLoadUpdated}
	}
	if err := pub.Publish(ctx, "org-1", events); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	recent, err := pub.Recent(ctx, "org-1", 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != RecentLimit {
		t.Errorf("recent len = %d, expected %d", len(recent), RecentLimit)
	}
	if recent[len(recent)-1].ID != events[len(events)-1].ID {
		t.Errorf("最新事件应保留在末尾")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), "org", sampleEvents()); err != nil {
		t.Errorf("NopPublisher.Publish() = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("NopPublisher.Close() = %v", err)
	}
}

func TestRedisPublisher_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pub := NewRedisPublisherFromClient(rdb, "test")

	if err := pub.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() = %v", err)
	}
	mr.Close()
	if err := pub.Ping(context.Background()); err == nil {
		t.Error("Redis 停止后 Ping 应失败")
	}
	_ = pub.Close()
}
