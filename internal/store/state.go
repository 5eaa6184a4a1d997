package store

import (
	"time"

	"github.com/paiban/loadplan/pkg/ledger"
	"github.com/paiban/loadplan/pkg/model"
)

// State 一个组织的权威状态。
// 发布后只读；变更总是在克隆上进行，成功持久化后整体替换。
type State struct {
	OrgID    string
	Defaults model.TrailerSpec
	Loads    []*model.Load
	Trailers []*model.Trailer
	Ledger   *ledger.Ledger
	Applied  map[string]*model.ApplyResult
	Rejected map[string]*model.RejectResult
}

// NewState 创建空状态
func NewState(orgID string, defaults model.TrailerSpec, maxEvents int) *State {
	return &State{
		OrgID:    orgID,
		Defaults: defaults.Clone(),
		Loads:    make([]*model.Load, 0),
		Trailers: make([]*model.Trailer, 0),
		Ledger:   ledger.New(maxEvents),
		Applied:  make(map[string]*model.ApplyResult),
		Rejected: make(map[string]*model.RejectResult),
	}
}

// Clone 深拷贝
func (s *State) Clone() *State {
	c := &State{
		OrgID:    s.OrgID,
		Defaults: s.Defaults.Clone(),
		Loads:    make([]*model.Load, len(s.Loads)),
		Trailers: make([]*model.Trailer, len(s.Trailers)),
		Ledger:   s.Ledger.Clone(),
		Applied:  make(map[string]*model.ApplyResult, len(s.Applied)),
		Rejected: make(map[string]*model.RejectResult, len(s.Rejected)),
	}
	for i, l := range s.Loads {
		c.Loads[i] = l.Clone()
	}
	for i, t := range s.Trailers {
		c.Trailers[i] = t.Clone()
	}
	for k, v := range s.Applied {
		c.Applied[k] = cloneApply(v)
	}
	for k, v := range s.Rejected {
		c.Rejected[k] = cloneReject(v)
	}
	return c
}

// FindLoad 按ID查找货物
func (s *State) FindLoad(id string) *model.Load {
	for _, l := range s.Loads {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// FindTrailer 按ID或车号查找挂车
func (s *State) FindTrailer(id string) *model.Trailer {
	for _, t := range s.Trailers {
		if t.ID == id {
			return t
		}
	}
	for _, t := range s.Trailers {
		if t.Unit != "" && t.Unit == id {
			return t
		}
	}
	return nil
}

// LoadsByID 按给定ID顺序取货物，未知ID单独返回
func (s *State) LoadsByID(ids []string) ([]*model.Load, []string) {
	index := make(map[string]*model.Load, len(s.Loads))
	for _, l := range s.Loads {
		index[l.ID] = l
	}
	loads := make([]*model.Load, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if l, ok := index[id]; ok {
			loads = append(loads, l)
		} else {
			missing = append(missing, id)
		}
	}
	return loads, missing
}

// Snapshot 转换为持久化快照
func (s *State) Snapshot(savedAt time.Time) *Snapshot {
	c := s.Clone()
	return &Snapshot{
		Version:             SnapshotVersion,
		OrgID:               c.OrgID,
		SavedAt:             savedAt.UTC(),
		TrailerSpecDefaults: c.Defaults,
		Loads:               c.Loads,
		Trailers:            c.Trailers,
		Events:              c.Ledger.All(),
		AppliedPlans:        c.Applied,
		RejectedPlans:       c.Rejected,
	}
}

// StateFromSnapshot 从快照恢复状态
func StateFromSnapshot(snap *Snapshot, maxEvents int) *State {
	st := NewState(snap.OrgID, snap.TrailerSpecDefaults, maxEvents)
	for _, l := range snap.Loads {
		if l != nil {
			st.Loads = append(st.Loads, l.Clone())
		}
	}
	for _, t := range snap.Trailers {
		if t != nil {
			st.Trailers = append(st.Trailers, t.Clone())
		}
	}
	st.Ledger.Restore(snap.Events)
	for k, v := range snap.AppliedPlans {
		st.Applied[k] = cloneApply(v)
	}
	for k, v := range snap.RejectedPlans {
		st.Rejected[k] = cloneReject(v)
	}
	return st
}

func cloneApply(r *model.ApplyResult) *model.ApplyResult {
	if r == nil {
		return nil
	}
	c := *r
	c.TouchedLoadIDs = append([]string{}, r.TouchedLoadIDs...)
	return &c
}

func cloneReject(r *model.RejectResult) *model.RejectResult {
	if r == nil {
		return nil
	}
	c := *r
	c.TouchedLoadIDs = append([]string{}, r.TouchedLoadIDs...)
	return &c
}
