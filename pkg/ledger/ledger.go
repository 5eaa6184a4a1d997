// Package ledger 提供只追加、按游标分页的事件账本
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paiban/loadplan/pkg/model"
)

const (
	// DefaultMaxEvents 默认保留的事件数上限，超过后淘汰最早的事件
	DefaultMaxEvents = 5000
	// DefaultReadLimit 默认每页事件数
	DefaultReadLimit = 50
	// MaxReadLimit 每页事件数上限
	MaxReadLimit = 500
)

// Clock 时钟
type Clock func() time.Time

// Page 一页事件
type Page struct {
	Events     []model.Event `json:"events"`
	NextCursor *time.Time    `json:"next_cursor"` // 没有更多事件时为 null
}

// Ledger 事件账本
//
// created_at 由账本自己的单调时钟生成，严格递增，因此可以直接作为分页游标。
// 超过保留上限的事件被永久淘汰。
type Ledger struct {
	mu        sync.RWMutex
	events    []model.Event
	maxEvents int
	now       Clock
	last      time.Time
	evicted   int
}

// New 创建账本，maxEvents <= 0 时使用默认上限
func New(maxEvents int) *Ledger {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Ledger{
		events:    make([]model.Event, 0),
		maxEvents: maxEvents,
		now:       time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (l *Ledger) SetClock(c Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = c
}

// MaxEvents 保留上限
func (l *Ledger) MaxEvents() int {
	return l.maxEvents
}

// Append 追加事件，分配ID和创建时间，返回写入的事件
func (l *Ledger) Append(e model.Event) model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.ID = uuid.New().String()
	e.CreatedAt = l.nextTimestamp()
	e.Meta = e.Meta.Clone()

	l.events = append(l.events, e)
	if over := len(l.events) - l.maxEvents; over > 0 {
		for i := 0; i < over; i++ {
			l.events[i] = model.Event{}
		}
		l.events = l.events[over:]
		l.evicted += over
	}
	return e
}

// nextTimestamp 单调时钟：不早于上一个事件，且至少晚 1 微秒
func (l *Ledger) nextTimestamp() time.Time {
	ts := l.now().UTC().Truncate(time.Microsecond)
	if !ts.After(l.last) {
		ts = l.last.Add(time.Microsecond)
	}
	l.last = ts
	return ts
}

// Read 返回 created_at 严格大于游标的事件，按时间升序，最多 limit 条
func (l *Ledger) Read(cursor *time.Time, limit int) Page {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if limit > MaxReadLimit {
		limit = MaxReadLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if cursor != nil {
		c := *cursor
		start = sort.Search(len(l.events), func(i int) bool {
			return l.events[i].CreatedAt.After(c)
		})
	}
	end := start + limit
	if end > len(l.events) {
		end = len(l.events)
	}

	page := Page{Events: make([]model.Event, 0, end-start)}
	for _, e := range l.events[start:end] {
		page.Events = append(page.Events, e.Clone())
	}
	if end < len(l.events) && end > start {
		next := l.events[end-1].CreatedAt
		page.NextCursor = &next
	}
	return page
}

// Len 当前保留的事件数
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Evicted 累计淘汰的事件数
func (l *Ledger) Evicted() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}

// All 返回全部保留事件的副本（用于快照）
func (l *Ledger) All() []model.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Restore 从快照恢复事件，按时间排序并截断到保留上限
func (l *Ledger) Restore(events []model.Event) {
	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	if over := len(sorted) - l.maxEvents; over > 0 {
		sorted = sorted[over:]
	}
	l.events = sorted
	l.last = time.Time{}
	if len(sorted) > 0 {
		l.last = sorted[len(sorted)-1].CreatedAt
	}
}

// Clone 复制账本（事件本身不可变，只复制切片）
func (l *Ledger) Clone() *Ledger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := make([]model.Event, len(l.events), len(l.events)+8)
	copy(events, l.events)
	return &Ledger{
		events:    events,
		maxEvents: l.maxEvents,
		now:       l.now,
		last:      l.last,
		evicted:   l.evicted,
	}
}
