// internal/preview/session_test.go
package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/filter"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

// manualScheduler records tasks; tests decide when they run.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	delay   time.Duration
	fn      func()
	mu      sync.Mutex
	stopped bool
	ran     bool
}

func (m *manualScheduler) AfterFunc(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{delay: d, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// pending returns tasks that were neither stopped nor run.
func (m *manualScheduler) pending() []*manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*manualTask
	for _, t := range m.tasks {
		t.mu.Lock()
		if !t.stopped && !t.ran {
			out = append(out, t)
		}
		t.mu.Unlock()
	}
	return out
}

func (t *manualTask) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.ran {
		return false
	}
	t.stopped = true
	return true
}

// run fires the task as the clock would; stopped tasks do nothing.
func (t *manualTask) run() {
	t.mu.Lock()
	if t.stopped || t.ran {
		t.mu.Unlock()
		return
	}
	t.ran = true
	t.mu.Unlock()
	t.fn()
}

// fakeMatcher answers with result/err and records every query.
type fakeMatcher struct {
	mu      sync.Mutex
	calls   []wire.Query
	result  types.MatchResult
	err     error
	started chan wire.Query           // optional: signalled when a call begins
	release map[int]chan struct{}     // optional: call index -> gate
	results map[int]types.MatchResult // optional: per-call result
}

func (f *fakeMatcher) Match(ctx context.Context, shop types.ShopID, q wire.Query) (types.MatchResult, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, q)
	gate := f.release[idx]
	result, ok := f.results[idx]
	if !ok {
		result = f.result
	}
	err := f.err
	f.mu.Unlock()

	if f.started != nil {
		f.started <- q
	}
	if gate != nil {
		<-gate
	}
	return result, err
}

func (f *fakeMatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeMatcher) lastCall() wire.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// spendTree returns a tree with one complete totalSpent >= v condition.
func spendTree(v float64) filter.Tree {
	tree := filter.New()
	return filter.SetValue(tree, tree.Groups[0].Conditions[0].ID, v)
}

func newTestSession(m Matcher) (*Session, *manualScheduler) {
	sched := &manualScheduler{}
	return NewSession(m, "shop-1", WithScheduler(sched)), sched
}

func TestSession_StartsIdle(t *testing.T) {
	s, _ := newTestSession(&fakeMatcher{})
	if got := s.State().Status; got != StatusIdle {
		t.Errorf("Status = %v, want idle", got)
	}
}

func TestSession_DebounceCollapses(t *testing.T) {
	m := &fakeMatcher{result: types.MatchResult{Count: 7}}
	s, sched := newTestSession(m)

	for i := 1; i <= 5; i++ {
		s.Update(spendTree(float64(i * 100)))
	}

	pending := sched.pending()
	if len(pending) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(pending))
	}
	if pending[0].delay != DefaultDebounce {
		t.Errorf("delay = %v, want %v", pending[0].delay, DefaultDebounce)
	}
	if got := s.State().Status; got != StatusLoading {
		t.Errorf("Status before window closes = %v, want loading", got)
	}

	pending[0].run()

	if n := m.callCount(); n != 1 {
		t.Fatalf("matcher calls = %d, want 1", n)
	}
	if got := m.lastCall().Conditions[0].Value; got != 500.0 {
		t.Errorf("evaluated value = %v, want 500 (last edit)", got)
	}
	st := s.State()
	if st.Status != StatusReady || st.Count != 7 {
		t.Errorf("State = %+v, want ready with count 7", st)
	}
}

func TestSession_EmptyTreeClears(t *testing.T) {
	m := &fakeMatcher{}
	s, sched := newTestSession(m)

	s.Update(spendTree(100))
	blankEmail := filter.Tree{
		Logic: filter.LogicAnd,
		Groups: []filter.Group{{
			ID:         "g1",
			Logic:      filter.LogicAnd,
			Conditions: []filter.Condition{{ID: "c1", Field: "email", Operator: fields.OpEq, Value: ""}},
		}},
	}
	s.Update(blankEmail)

	if n := len(sched.pending()); n != 0 {
		t.Errorf("pending tasks = %d, want 0", n)
	}
	if got := s.State().Status; got != StatusIdle {
		t.Errorf("Status = %v, want idle", got)
	}
	for _, task := range sched.tasks {
		task.run()
	}
	if n := m.callCount(); n != 0 {
		t.Errorf("matcher calls = %d, want 0", n)
	}
}

func TestSession_StaleResponseDiscarded(t *testing.T) {
	m := &fakeMatcher{
		started: make(chan wire.Query, 2),
		release: map[int]chan struct{}{0: make(chan struct{}), 1: make(chan struct{})},
		results: map[int]types.MatchResult{0: {Count: 111}, 1: {Count: 222}},
	}
	s, sched := newTestSession(m)

	var wg sync.WaitGroup
	fire := func() {
		task := sched.pending()[0]
		wg.Add(1)
		go func() {
			defer wg.Done()
			task.run()
		}()
		<-m.started
	}

	s.Update(spendTree(100)) // call A
	fire()
	s.Update(spendTree(200)) // call B, issued while A is in flight
	fire()

	close(m.release[1]) // B resolves first
	deadline := time.After(2 * time.Second)
	for s.State().Status != StatusReady {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for B")
		case <-time.After(time.Millisecond):
		}
	}
	close(m.release[0]) // A resolves after B
	wg.Wait()

	if got := s.State().Count; got != 222 {
		t.Errorf("Count = %d, want 222 (B's result)", got)
	}
}

func TestSession_FailureThenRetry(t *testing.T) {
	m := &fakeMatcher{err: errors.New("matching service unavailable")}
	s, sched := newTestSession(m)

	s.Update(spendTree(100))
	sched.pending()[0].run()

	st := s.State()
	if st.Status != StatusFailed || st.Err == nil {
		t.Fatalf("State = %+v, want failed with error", st)
	}

	m.mu.Lock()
	m.err = nil
	m.result = types.MatchResult{Count: 0}
	m.mu.Unlock()

	s.Retry()
	pending := sched.pending()
	if len(pending) != 1 || pending[0].delay != 0 {
		t.Fatalf("Retry scheduled %d tasks, want one immediate task", len(pending))
	}
	pending[0].run()

	st = s.State()
	if st.Status != StatusReady || st.Count != 0 || st.Err != nil {
		t.Errorf("State = %+v, want ready with zero matches", st)
	}
	if n := m.callCount(); n != 2 {
		t.Errorf("matcher calls = %d, want 2", n)
	}
}

func TestSession_RetryWithoutTreeIsNoOp(t *testing.T) {
	m := &fakeMatcher{}
	s, sched := newTestSession(m)
	s.Retry()
	s.Update(filter.New())
	s.Retry()
	if n := len(sched.pending()); n != 0 {
		t.Errorf("pending tasks = %d, want 0", n)
	}
}

func TestSession_CloseDropsWork(t *testing.T) {
	m := &fakeMatcher{}
	s, sched := newTestSession(m)

	s.Update(spendTree(100))
	task := sched.tasks[0]
	s.Close()
	task.fn() // even if the clock fired anyway

	if n := m.callCount(); n != 0 {
		t.Errorf("matcher calls = %d, want 0", n)
	}
	s.Update(spendTree(200))
	if n := len(sched.pending()); n != 0 {
		t.Errorf("pending after Close = %d, want 0", n)
	}
	if _, err := s.Wait(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestSession_ListenerSeesTransitions(t *testing.T) {
	m := &fakeMatcher{result: types.MatchResult{Count: 3}}
	sched := &manualScheduler{}
	var seen []Status
	s := NewSession(m, "shop-1", WithScheduler(sched), WithListener(func(st State) {
		seen = append(seen, st.Status)
	}))

	s.Update(spendTree(100))
	sched.pending()[0].run()
	s.Update(filter.New())

	want := []Status{StatusLoading, StatusReady, StatusIdle}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestSession_WaitWithClock(t *testing.T) {
	m := &fakeMatcher{result: types.MatchResult{Count: 42}}
	s := NewSession(m, "shop-1", WithDebounce(time.Millisecond))
	defer s.Close()

	s.Update(spendTree(100))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	st, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if st.Status != StatusReady || st.Count != 42 {
		t.Errorf("State = %+v, want ready with count 42", st)
	}
}
