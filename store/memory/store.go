// Package memory is an in-process store.Store for tests and the replay CLI.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/tier"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps all state in maps guarded by one RWMutex. Atomic holds the
// write lock for the whole transaction and restores a snapshot on error.
type Store struct {
	mu     sync.RWMutex
	state  *state
	closed bool
}

func New() *Store {
	return &Store{state: newState()}
}

// Atomic implements store.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return streampass.ErrStoreClosed
	}

	snapshot := s.state.clone()
	if err := fn(ctx, s.state); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return streampass.ErrStoreClosed
	}

	return fn(ctx, readOnly{s.state})
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return streampass.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Single-call transactions
// ──────────────────────────────────────────────────

func (s *Store) NextPassID(ctx context.Context) (pass.ID, error) {
	var next pass.ID
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		next, err = tx.NextPassID(ctx)
		return err
	})
	return next, err
}

func (s *Store) CreatePass(ctx context.Context, p *pass.Pass) error {
	return s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error { return tx.CreatePass(ctx, p) })
}

func (s *Store) GetPass(ctx context.Context, passID pass.ID) (*pass.Pass, error) {
	var out *pass.Pass
	err := s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GetPass(ctx, passID)
		return err
	})
	return out, err
}

func (s *Store) UpdatePass(ctx context.Context, p *pass.Pass) error {
	return s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error { return tx.UpdatePass(ctx, p) })
}

func (s *Store) ListPassesByOwner(ctx context.Context, owner pass.Address) ([]*pass.Pass, error) {
	var out []*pass.Pass
	err := s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListPassesByOwner(ctx, owner)
		return err
	})
	return out, err
}

func (s *Store) CountPasses(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.CountPasses(ctx)
		return err
	})
	return n, err
}

func (s *Store) GetActivePass(ctx context.Context, subscriber pass.Address) (pass.ID, error) {
	var out pass.ID
	err := s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GetActivePass(ctx, subscriber)
		return err
	})
	return out, err
}

func (s *Store) SetActivePass(ctx context.Context, subscriber pass.Address, passID pass.ID) error {
	return s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error { return tx.SetActivePass(ctx, subscriber, passID) })
}

func (s *Store) GetSchedule(ctx context.Context) (tier.Schedule, error) {
	var out tier.Schedule
	err := s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GetSchedule(ctx)
		return err
	})
	return out, err
}

func (s *Store) SetSchedule(ctx context.Context, sched tier.Schedule) error {
	return s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error { return tx.SetSchedule(ctx, sched) })
}

func (s *Store) GetOwner(ctx context.Context) (pass.Address, error) {
	var out pass.Address
	err := s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GetOwner(ctx)
		return err
	})
	return out, err
}

func (s *Store) SetOwner(ctx context.Context, owner pass.Address) error {
	return s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error { return tx.SetOwner(ctx, owner) })
}

// ──────────────────────────────────────────────────
// state
// ──────────────────────────────────────────────────

// state is the lock-free transaction body. It hands out clones so callers
// never alias stored passes.
type state struct {
	seq      pass.ID
	passes   map[pass.ID]*pass.Pass
	active   map[pass.Address]pass.ID
	schedule tier.Schedule
	owner    pass.Address
}

func newState() *state {
	return &state{
		passes: make(map[pass.ID]*pass.Pass),
		active: make(map[pass.Address]pass.ID),
	}
}

func (st *state) clone() *state {
	c := &state{
		seq:      st.seq,
		passes:   make(map[pass.ID]*pass.Pass, len(st.passes)),
		active:   make(map[pass.Address]pass.ID, len(st.active)),
		schedule: st.schedule.Clone(),
		owner:    st.owner,
	}
	for k, p := range st.passes {
		c.passes[k] = p.Clone()
	}
	for k, v := range st.active {
		c.active[k] = v
	}
	return c
}

func (st *state) NextPassID(_ context.Context) (pass.ID, error) {
	st.seq++
	return st.seq, nil
}

func (st *state) CreatePass(_ context.Context, p *pass.Pass) error {
	if p.ID.IsNone() {
		return &streampass.ValidationError{Field: "id", Message: "pass id 0 is reserved"}
	}
	if _, exists := st.passes[p.ID]; exists {
		return fmt.Errorf("%w: pass %d already exists", streampass.ErrTransactionFailed, p.ID)
	}
	st.passes[p.ID] = p.Clone()
	if p.ID > st.seq {
		st.seq = p.ID
	}
	return nil
}

func (st *state) GetPass(_ context.Context, passID pass.ID) (*pass.Pass, error) {
	if p, ok := st.passes[passID]; ok {
		return p.Clone(), nil
	}
	return nil, streampass.ErrPassNotFound
}

func (st *state) UpdatePass(_ context.Context, p *pass.Pass) error {
	if _, ok := st.passes[p.ID]; !ok {
		return streampass.ErrPassNotFound
	}
	st.passes[p.ID] = p.Clone()
	return nil
}

func (st *state) ListPassesByOwner(_ context.Context, owner pass.Address) ([]*pass.Pass, error) {
	result := make([]*pass.Pass, 0)
	for _, p := range st.passes {
		if p.Owner == owner {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (st *state) CountPasses(_ context.Context) (uint64, error) {
	return uint64(len(st.passes)), nil
}

func (st *state) GetActivePass(_ context.Context, subscriber pass.Address) (pass.ID, error) {
	return st.active[subscriber], nil
}

func (st *state) SetActivePass(_ context.Context, subscriber pass.Address, passID pass.ID) error {
	if passID.IsNone() {
		delete(st.active, subscriber)
		return nil
	}
	st.active[subscriber] = passID
	return nil
}

func (st *state) GetSchedule(_ context.Context) (tier.Schedule, error) {
	if st.schedule == nil {
		return nil, streampass.ErrNotConfigured
	}
	return st.schedule.Clone(), nil
}

func (st *state) SetSchedule(_ context.Context, s tier.Schedule) error {
	st.schedule = s.Clone()
	return nil
}

func (st *state) GetOwner(_ context.Context) (pass.Address, error) {
	if st.owner == "" {
		return "", streampass.ErrNotConfigured
	}
	return st.owner, nil
}

func (st *state) SetOwner(_ context.Context, owner pass.Address) error {
	st.owner = owner
	return nil
}

// readOnly rejects writes made inside View.
type readOnly struct{ *state }

func (readOnly) NextPassID(context.Context) (pass.ID, error)                { return pass.None, errReadOnly }
func (readOnly) CreatePass(context.Context, *pass.Pass) error               { return errReadOnly }
func (readOnly) UpdatePass(context.Context, *pass.Pass) error               { return errReadOnly }
func (readOnly) SetActivePass(context.Context, pass.Address, pass.ID) error { return errReadOnly }
func (readOnly) SetSchedule(context.Context, tier.Schedule) error           { return errReadOnly }
func (readOnly) SetOwner(context.Context, pass.Address) error               { return errReadOnly }

var errReadOnly = fmt.Errorf("%w: write inside read-only view", streampass.ErrTransactionFailed)
