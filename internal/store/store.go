// Package store 持有组织的权威状态（货物、挂车、默认规格、事件账本）。
//
// 所有变更在单一写锁内执行：克隆当前状态 -> 在副本上变更 -> 持久化快照
// （有限次重试）-> 替换状态指针。持久化失败时丢弃副本，内存与持久化状态
// 始终一致。读操作只在获取状态指针时持有读锁。
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/ledger"
	"github.com/paiban/loadplan/pkg/logger"
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/geometry"
)

// errNoop 变更函数判定无需修改（如幂等重放）
var errNoop = errors.New("store: no change")

// Options 存储选项
type Options struct {
	OrgID          string
	Snapshotter    Snapshotter
	Defaults       *model.TrailerSpec // 没有快照时的初始默认规格
	Trailers       []*model.Trailer   // 没有快照时的初始挂车
	MaxEvents      int
	PersistRetries int
	RetryBackoff   time.Duration
	Clock          ledger.Clock
}

// Store 单写者状态存储
type Store struct {
	mu      sync.RWMutex
	state   *State
	snap    Snapshotter
	retries int
	backoff time.Duration
	clock   ledger.Clock
}

// Open 从快照恢复状态，没有快照时按选项初始化
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Snapshotter == nil {
		opts.Snapshotter = NewMemorySnapshotter()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.PersistRetries < 0 {
		opts.PersistRetries = 0
	}

	snap, err := opts.Snapshotter.Load(ctx)
	if err != nil {
		return nil, apperrors.PersistenceFailure(err)
	}

	var st *State
	if snap != nil {
		st = StateFromSnapshot(snap, opts.MaxEvents)
		st.Defaults = geometry.NormalizeWith(nil, st.Defaults)
		if opts.OrgID != "" && st.OrgID != opts.OrgID {
			logger.Warn().
				Str("snapshot_org", st.OrgID).
				Str("org", opts.OrgID).
				Msg("快照组织与配置不一致，使用配置的组织ID")
			st.OrgID = opts.OrgID
		}
		logger.Info().
			Str("backend", opts.Snapshotter.Name()).
			Int("loads", len(st.Loads)).
			Int("trailers", len(st.Trailers)).
			Int("events", st.Ledger.Len()).
			Msg("已从快照恢复状态")
	} else {
		defaults := geometry.Fallback()
		if opts.Defaults != nil {
			defaults = geometry.NormalizeWith(nil, *opts.Defaults)
		}
		st = NewState(opts.OrgID, defaults, opts.MaxEvents)
		for _, t := range opts.Trailers {
			st.Trailers = append(st.Trailers, t.Clone())
		}
		logger.Info().
			Str("backend", opts.Snapshotter.Name()).
			Int("trailers", len(st.Trailers)).
			Msg("未找到快照，使用初始状态")
	}
	st.Ledger.SetClock(opts.Clock)

	return &Store{
		state:   st,
		snap:    opts.Snapshotter,
		retries: opts.PersistRetries,
		backoff: opts.RetryBackoff,
		clock:   opts.Clock,
	}, nil
}

// Current 返回当前状态快照，调用方不得修改
func (s *Store) Current() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Backend 快照后端名称
func (s *Store) Backend() string {
	return s.snap.Name()
}

// Mutation 在状态副本上执行的变更
type Mutation func(st *State) error

// Mutate 执行一次变更，返回新状态与本次追加的事件
func (s *Store) Mutate(ctx context.Context, fn Mutation) (*State, []model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	mark := lastEventTime(next)

	if err := fn(next); err != nil {
		if errors.Is(err, errNoop) {
			return s.state, nil, nil
		}
		return nil, nil, err
	}

	if err := s.persist(ctx, next); err != nil {
		return nil, nil, apperrors.PersistenceFailure(err)
	}
	s.state = next
	return next, eventsAfter(next, mark), nil
}

func (s *Store) persist(ctx context.Context, st *State) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 && s.backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
		if err = s.snap.Save(ctx, st.Snapshot(s.clock())); err == nil {
			return nil
		}
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("backend", s.snap.Name()).
			Msg("快照写入失败")
	}
	logger.Error().
		Err(err).
		Str("backend", s.snap.Name()).
		Msg("快照写入重试耗尽，变更已丢弃")
	return err
}

func lastEventTime(st *State) time.Time {
	events := st.Ledger.All()
	if len(events) == 0 {
		return time.Time{}
	}
	return events[len(events)-1].CreatedAt
}

func eventsAfter(st *State, mark time.Time) []model.Event {
	var out []model.Event
	for _, e := range st.Ledger.All() {
		if e.CreatedAt.After(mark) {
			out = append(out, e.Clone())
		}
	}
	return out
}
