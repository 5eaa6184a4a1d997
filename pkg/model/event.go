package model

import "time"

// EventType 事件类型
type EventType string

const (
	EventLoadUpdated        EventType = "LOAD_UPDATED"
	EventPlanApplied        EventType = "PLAN_APPLIED"
	EventPlanRejected       EventType = "PLAN_REJECTED"
	EventLoadsImported      EventType = "LOADS_IMPORTED"
	EventTrailerSpecUpdated EventType = "TRAILER_SPEC_UPDATED"
)

// Event 账本事件（写入后不可变）
type Event struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Type      EventType `json:"type"`
	LoadID    string    `json:"load_id,omitempty"`
	Message   string    `json:"message"`
	Meta      JSONMap   `json:"meta,omitempty"`
}

// Clone 拷贝（meta 浅拷贝）
func (e Event) Clone() Event {
	e.Meta = e.Meta.Clone()
	return e
}
