// Package preview drives a live count and sample of the customers matching
// a filter tree while it is being edited.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/solatis/segmentkeeper/internal/filter"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

/*
 * Preview session state machine.
 *
 *   Idle ──Update(non-empty)──> Loading ──match ok──> Ready
 *    ^                            │    └──match err─> Failed ──Retry──> Loading
 *    └────Update(empty)───────────┘
 *
 * Debounce: Update stops the pending task and schedules a new one, so edits
 * inside one window collapse into a single matcher call on the last tree.
 *
 * Staleness: every Update and Retry bumps the generation. A task or response
 * carries the generation it was issued under and is dropped unless that is
 * still the latest, so an older response resolving after a newer one can
 * never overwrite it.
 *
 * All state lives on the Session; nothing is shared between sessions.
 */

// DefaultDebounce is the quiet window between the last edit and evaluation.
const DefaultDebounce = 500 * time.Millisecond

// ErrClosed is returned by Wait once the session is closed.
var ErrClosed = errors.New("preview session closed")

// Matcher evaluates an encoded query for a shop.
// Implemented by the HTTP client and, server-side, by the customers matcher.
type Matcher interface {
	Match(ctx context.Context, shop types.ShopID, q wire.Query) (types.MatchResult, error)
}

// Status is the lifecycle position of a preview.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the preview. Count and Sample are set for
// StatusReady; Err for StatusFailed. A ready state with Count 0 is a
// legitimate empty result, distinct from a failure.
type State struct {
	Status     Status
	Count      int
	Sample     []types.CustomerSummary
	Err        error
	Generation uint64
}

// Option configures a Session.
type Option func(*Session)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(sched Scheduler) Option {
	return func(s *Session) { s.scheduler = sched }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithListener registers fn to receive every published state. fn runs with
// the session lock held and must not call back into the Session.
func WithListener(fn func(State)) Option {
	return func(s *Session) { s.listener = fn }
}

// Session is the preview state of one editor.
type Session struct {
	matcher   Matcher
	shop      types.ShopID
	debounce  time.Duration
	scheduler Scheduler
	logger    *slog.Logger
	listener  func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	generation uint64
	pending    Task
	last       wire.Query
	hasLast    bool
	state      State
	settled    chan struct{}
	closed     bool
}

// NewSession creates an idle session evaluating against matcher for shop.
func NewSession(matcher Matcher, shop types.ShopID, opts ...Option) *Session {
	s := &Session{
		matcher:   matcher,
		shop:      shop,
		debounce:  DefaultDebounce,
		scheduler: SystemScheduler,
		logger:    slog.Default(),
		settled:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	close(s.settled)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Update schedules evaluation of t after the debounce window. An empty tree
// cancels pending work and clears the preview without calling the matcher.
func (s *Session) Update(t filter.Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.generation++
	s.stopPendingLocked()

	if t.IsEmpty() {
		s.hasLast = false
		s.last = wire.Query{}
		s.publishLocked(State{Status: StatusIdle})
		return
	}

	s.last = wire.Encode(t)
	s.hasLast = true
	s.scheduleLocked(s.debounce)
}

// Retry re-evaluates the last non-empty tree without waiting for the
// debounce window. No-op when nothing has been evaluated yet.
func (s *Session) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.hasLast {
		return
	}
	s.generation++
	s.stopPendingLocked()
	s.scheduleLocked(0)
}

// State returns the latest published state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the session leaves StatusLoading and returns that state.
func (s *Session) Wait(ctx context.Context) (State, error) {
	s.mu.Lock()
	ch := s.settled
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return s.State(), ctx.Err()
	case <-s.ctx.Done():
		return s.State(), ErrClosed
	}
	return s.State(), nil
}

// Close stops pending work and cancels in-flight calls. Responses arriving
// afterwards are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.stopPendingLocked()
	s.cancel()
}

func (s *Session) stopPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

func (s *Session) scheduleLocked(delay time.Duration) {
	gen := s.generation
	q := s.last
	s.publishLocked(State{Status: StatusLoading})
	s.pending = s.scheduler.AfterFunc(delay, func() {
		s.evaluate(gen, q)
	})
}

// evaluate calls the matcher for q and applies the outcome if gen is still
// the latest generation.
func (s *Session) evaluate(gen uint64, q wire.Query) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()

	result, err := s.matcher.Match(s.ctx, s.shop, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation {
		s.logger.Debug("discarding stale preview response",
			"generation", gen,
			"latest", s.generation,
		)
		return
	}

	if err != nil {
		s.logger.Warn("preview evaluation failed", "error", err, "shop", s.shop)
		s.publishLocked(State{Status: StatusFailed, Err: err})
		return
	}
	s.publishLocked(State{
		Status: StatusReady,
		Count:  result.Count,
		Sample: result.Sample,
	})
}

func (s *Session) publishLocked(st State) {
	st.Generation = s.generation
	s.state = st

	if st.Status == StatusLoading {
		select {
		case <-s.settled:
			s.settled = make(chan struct{})
		default:
		}
	} else {
		select {
		case <-s.settled:
		default:
			close(s.settled)
		}
	}

	if s.listener != nil {
		s.listener(st)
	}
}
