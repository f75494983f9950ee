package topology

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
)

// Persister saves and restores the policy outside the process.
type Persister interface {
	Save(ctx context.Context, p Policy) error
	Load(ctx context.Context) (Policy, bool, error)
}

// Store is the guarded holder of the current policy. Reads are lock-free;
// writers are serialised so concurrent partial updates never lose fields.
type Store struct {
	current   atomic.Pointer[Policy]
	mu        sync.Mutex
	persister Persister
	subs      []chan Policy
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersister saves every accepted change through p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore returns a store seeded with initial.
func NewStore(initial Policy, opts ...Option) *Store {
	s := &Store{
		logger: logging.WithComponent("topology"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if initial.Mode == "" {
		initial.Mode = Hybrid
	}
	s.current.Store(&initial)
	return s
}

// Snapshot returns a copy of the current policy.
func (s *Store) Snapshot() Policy {
	return *s.current.Load()
}

// Update applies a partial change on top of the current policy. The change
// takes effect in memory even when persisting it fails; the persistence error
// is logged. Saves happen under the write lock so the persisted order matches
// the commit order.
func (s *Store) Update(ctx context.Context, u Update, by string) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := u.apply(s.Snapshot())
	if err != nil {
		return s.Snapshot(), err
	}
	next = s.commitLocked(next, by)
	s.persistLocked(ctx, next)
	return next, nil
}

// Replace swaps the whole policy, as done by a file reload.
func (s *Store) Replace(ctx context.Context, p Policy, by string) (Policy, error) {
	if err := p.Validate(); err != nil {
		return s.Snapshot(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.commitLocked(p, by)
	s.persistLocked(ctx, next)
	return next, nil
}

// Restore loads a previously persisted policy, if any. It does not write back.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.persister == nil {
		return false, nil
	}
	p, found, err := s.persister.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("restore topology: %w", err)
	}
	if !found {
		return false, nil
	}
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("restore topology: %w", err)
	}
	s.mu.Lock()
	s.current.Store(&p)
	s.mu.Unlock()
	s.logger.Info("topology restored", "mode", p.Mode, "updated_by", p.UpdatedBy)
	return true, nil
}

// Subscribe returns a channel that receives every committed policy. Slow
// subscribers miss intermediate values rather than blocking writers.
func (s *Store) Subscribe() <-chan Policy {
	ch := make(chan Policy, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) commitLocked(next Policy, by string) Policy {
	prev := s.Snapshot()
	next.UpdatedAt = s.now()
	next.UpdatedBy = by
	s.current.Store(&next)

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}

	s.logger.Info("topology updated",
		"from", prev.Mode,
		"to", next.Mode,
		"vision_enabled", next.VisionEnabled,
		"executive_agent_enabled", next.ExecutiveAgentEnabled,
		"updated_by", by,
	)
	return next
}

func (s *Store) persistLocked(ctx context.Context, p Policy) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, p); err != nil {
		s.logger.Warn("failed to persist topology", "error", err)
	}
}
