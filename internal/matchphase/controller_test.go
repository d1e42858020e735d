package matchphase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu        sync.Mutex
	calls     []Action
	err       error
	startedAt *time.Time
	// block, when set, holds the call until released.
	block   chan struct{}
	entered chan struct{}
}

func (b *fakeBackend) Transition(ctx context.Context, matchID int64, action Action) (TransitionResult, error) {
	b.mu.Lock()
	b.calls = append(b.calls, action)
	err := b.err
	startedAt := b.startedAt
	block := b.block
	entered := b.entered
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return TransitionResult{}, ctx.Err()
		}
	}
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{StartedAt: startedAt}, nil
}

// backendFunc adapts a function to Backend.
type backendFunc func(ctx context.Context, matchID int64, action Action) (TransitionResult, error)

func (f backendFunc) Transition(ctx context.Context, matchID int64, action Action) (TransitionResult, error) {
	return f(ctx, matchID, action)
}

type publicErr struct{ msg string }

func (e publicErr) Error() string         { return "backend: " + e.msg }
func (e publicErr) PublicMessage() string { return e.msg }

type recordingObserver struct {
	mu            sync.Mutex
	phases        []Phase
	notifications []Notification
}

func (o *recordingObserver) PhaseChanged(_ context.Context, s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, s.Phase)
}

func (o *recordingObserver) Notify(_ context.Context, n Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = append(o.notifications, n)
}

func (o *recordingObserver) last() Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.notifications) == 0 {
		return Notification{}
	}
	return o.notifications[len(o.notifications)-1]
}

type memoryJournal struct {
	mu     sync.Mutex
	events []Event
}

func (j *memoryJournal) Record(_ context.Context, e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func newTestController(t *testing.T, backend Backend, initial Phase) (*Controller, *recordingObserver, *memoryJournal) {
	t.Helper()
	observer := &recordingObserver{}
	journal := &memoryJournal{}
	c, err := New(Config{
		MatchID:  42,
		Backend:  backend,
		Observer: observer,
		Journal:  journal,
		Initial:  Report{Phase: initial},
		Now:      func() time.Time { return time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c, observer, journal
}

func TestTransitionSequenceMovesForward(t *testing.T) {
	c, _, journal := newTestController(t, &fakeBackend{}, PhaseNotStarted)
	ctx := context.Background()

	steps := []struct {
		action Action
		want   Phase
	}{
		{ActionStartMatch, PhaseFirstHalf},
		{ActionEndFirstHalf, PhaseHalfTime},
		{ActionStartSecondHalf, PhaseSecondHalf},
		{ActionEndMatch, PhaseEnded},
		{ActionFinalizeMatch, PhaseFinished},
	}

	prev := c.Phase()
	for _, step := range steps {
		if err := c.Transition(ctx, step.action); err != nil {
			t.Fatalf("%s: %v", step.action, err)
		}
		got := c.Phase()
		if got != step.want {
			t.Fatalf("%s: expected %s, got %s", step.action, step.want, got)
		}
		if !prev.Before(got) {
			t.Fatalf("%s: phase went from %s to %s", step.action, prev, got)
		}
		prev = got
	}

	if len(journal.events) != len(steps) {
		t.Fatalf("expected %d journal events, got %d", len(steps), len(journal.events))
	}
	for _, e := range journal.events {
		if e.Outcome != OutcomeConfirmed {
			t.Fatalf("expected confirmed event, got %+v", e)
		}
	}
}

func TestTransitionStoresStartTimestamps(t *testing.T) {
	first := time.Date(2024, 5, 10, 18, 0, 5, 0, time.UTC)
	backend := &fakeBackend{startedAt: &first}
	c, _, _ := newTestController(t, backend, PhaseNotStarted)
	ctx := context.Background()

	if err := c.Transition(ctx, ActionStartMatch); err != nil {
		t.Fatalf("start match: %v", err)
	}
	s := c.Snapshot()
	if s.FirstHalfStartedAt == nil || !s.FirstHalfStartedAt.Equal(first) {
		t.Fatalf("expected first half start %v, got %v", first, s.FirstHalfStartedAt)
	}

	backend.startedAt = nil
	if err := c.Transition(ctx, ActionEndFirstHalf); err != nil {
		t.Fatalf("end first half: %v", err)
	}

	second := first.Add(time.Hour)
	backend.startedAt = &second
	if err := c.Transition(ctx, ActionStartSecondHalf); err != nil {
		t.Fatalf("start second half: %v", err)
	}
	s = c.Snapshot()
	if s.SecondHalfStartedAt == nil || !s.SecondHalfStartedAt.Equal(second) {
		t.Fatalf("expected second half start %v, got %v", second, s.SecondHalfStartedAt)
	}
	if !s.FirstHalfStartedAt.Equal(first) {
		t.Fatalf("first half start changed to %v", s.FirstHalfStartedAt)
	}
}

func TestTransitionRollsBackOnFailure(t *testing.T) {
	backend := &fakeBackend{err: publicErr{msg: "Match already started by another operator"}}
	c, observer, journal := newTestController(t, backend, PhaseNotStarted)

	err := c.Transition(context.Background(), ActionStartMatch)
	if err == nil {
		t.Fatalf("expected error")
	}
	var pe publicErr
	if !errors.As(err, &pe) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
	if got := c.Phase(); got != PhaseNotStarted {
		t.Fatalf("expected rollback to %s, got %s", PhaseNotStarted, got)
	}

	n := observer.last()
	if n.Level != LevelError || n.Message != "Match already started by another operator" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	wantPhases := []Phase{PhaseFirstHalf, PhaseNotStarted}
	if len(observer.phases) != 2 || observer.phases[0] != wantPhases[0] || observer.phases[1] != wantPhases[1] {
		t.Fatalf("expected phases %v, got %v", wantPhases, observer.phases)
	}
	if len(journal.events) != 1 || journal.events[0].Outcome != OutcomeReverted {
		t.Fatalf("expected one reverted event, got %+v", journal.events)
	}
}

func TestTransitionFallbackMessage(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection reset")}
	c, observer, _ := newTestController(t, backend, PhaseHalfTime)

	if err := c.Transition(context.Background(), ActionStartSecondHalf); err == nil {
		t.Fatalf("expected error")
	}
	if got := c.Phase(); got != PhaseHalfTime {
		t.Fatalf("expected rollback to %s, got %s", PhaseHalfTime, got)
	}
	if msg := observer.last().Message; msg != fallbackErrorMessage {
		t.Fatalf("expected fallback message, got %q", msg)
	}
}

func TestTransitionRejectsInvalidAction(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newTestController(t, backend, PhaseNotStarted)

	err := c.Transition(context.Background(), ActionEndMatch)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("backend should not be called, got %v", backend.calls)
	}

	if err := c.Transition(context.Background(), Action("kick_off")); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestSuspendFromAnyNonTerminalPhase(t *testing.T) {
	for _, phase := range []Phase{PhaseNotStarted, PhaseFirstHalf, PhaseHalfTime, PhaseSecondHalf, PhaseEnded} {
		c, _, _ := newTestController(t, &fakeBackend{}, phase)
		if err := c.Transition(context.Background(), ActionSuspendMatch); err != nil {
			t.Fatalf("suspend from %s: %v", phase, err)
		}
		if c.Phase() != PhaseSuspended {
			t.Fatalf("expected suspended from %s, got %s", phase, c.Phase())
		}
	}

	for _, phase := range []Phase{PhaseFinished, PhaseSuspended} {
		c, _, _ := newTestController(t, &fakeBackend{}, phase)
		if err := c.Transition(context.Background(), ActionSuspendMatch); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("suspend from %s: expected ErrInvalidTransition, got %v", phase, err)
		}
	}
}

func TestTransitionPendingGuard(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c, _, _ := newTestController(t, backend, PhaseNotStarted)

	done := make(chan error, 1)
	go func() {
		done <- c.Transition(context.Background(), ActionStartMatch)
	}()
	<-backend.entered

	s := c.Snapshot()
	if s.Phase != PhaseFirstHalf || !s.Pending {
		t.Fatalf("expected optimistic pending first half, got %+v", s)
	}
	if err := c.Transition(context.Background(), ActionSuspendMatch); !errors.Is(err, ErrTransitionPending) {
		t.Fatalf("expected ErrTransitionPending, got %v", err)
	}
	if c.Reconcile(context.Background(), Report{Phase: PhaseHalfTime}) {
		t.Fatalf("reconcile should be ignored while pending")
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Fatalf("transition: %v", err)
	}
	if s := c.Snapshot(); s.Phase != PhaseFirstHalf || s.Pending {
		t.Fatalf("expected confirmed first half, got %+v", s)
	}
}

func TestTransitionCancelledContextRollsBack(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c, observer, _ := newTestController(t, backend, PhaseNotStarted)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Transition(ctx, ActionStartMatch)
	}()
	<-backend.entered
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.Phase() != PhaseNotStarted {
		t.Fatalf("expected rollback, got %s", c.Phase())
	}
	if observer.last().Level != LevelError {
		t.Fatalf("expected error notification, got %+v", observer.last())
	}
}

func TestTransitionConfirmedBeforeCancelIsKept(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := time.Date(2024, 5, 10, 18, 0, 5, 0, time.UTC)
	backend := backendFunc(func(ctx context.Context, matchID int64, action Action) (TransitionResult, error) {
		// The caller goes away after the backend already applied the change.
		cancel()
		return TransitionResult{StartedAt: &started}, nil
	})
	c, observer, journal := newTestController(t, backend, PhaseNotStarted)

	if err := c.Transition(ctx, ActionStartMatch); err != nil {
		t.Fatalf("expected confirmed transition, got %v", err)
	}
	s := c.Snapshot()
	if s.Phase != PhaseFirstHalf || s.Pending {
		t.Fatalf("expected confirmed first half, got %+v", s)
	}
	if s.FirstHalfStartedAt == nil || !s.FirstHalfStartedAt.Equal(started) {
		t.Fatalf("expected first half start %v, got %v", started, s.FirstHalfStartedAt)
	}
	if observer.last().Level != LevelSuccess {
		t.Fatalf("expected success notification, got %+v", observer.last())
	}
	if len(journal.events) != 1 || journal.events[0].Outcome != OutcomeConfirmed {
		t.Fatalf("expected one confirmed event, got %+v", journal.events)
	}
}

func TestReconcileKeepsTerminalPhase(t *testing.T) {
	tests := []struct {
		name     string
		terminal Phase
		reported Phase
	}{
		{name: "finished then suspended", terminal: PhaseFinished, reported: PhaseSuspended},
		{name: "suspended then finished", terminal: PhaseSuspended, reported: PhaseFinished},
		{name: "finished then second half", terminal: PhaseFinished, reported: PhaseSecondHalf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, observer, journal := newTestController(t, &fakeBackend{}, PhaseEnded)
			ctx := context.Background()
			if !c.Reconcile(ctx, Report{Phase: tt.terminal}) {
				t.Fatalf("expected %s to be adopted", tt.terminal)
			}
			if c.Reconcile(ctx, Report{Phase: tt.reported}) {
				t.Fatalf("report of %s after %s should be ignored", tt.reported, tt.terminal)
			}
			if c.Phase() != tt.terminal {
				t.Fatalf("expected %s, got %s", tt.terminal, c.Phase())
			}
			if len(observer.phases) != 1 || len(journal.events) != 1 {
				t.Fatalf("expected a single adoption, got phases %v events %+v", observer.phases, journal.events)
			}
		})
	}
}

func TestReconcileIgnoresStalePoll(t *testing.T) {
	c, _, _ := newTestController(t, &fakeBackend{}, PhaseNotStarted)
	ctx := context.Background()

	if err := c.Transition(ctx, ActionStartMatch); err != nil {
		t.Fatalf("start match: %v", err)
	}
	if c.Reconcile(ctx, Report{Phase: PhaseNotStarted}) {
		t.Fatalf("stale report should not change state")
	}
	if c.Phase() != PhaseFirstHalf {
		t.Fatalf("expected first half, got %s", c.Phase())
	}

	if err := c.Transition(ctx, ActionEndFirstHalf); err != nil {
		t.Fatalf("end first half: %v", err)
	}
	// Backend catches up with the first transition only.
	if c.Reconcile(ctx, Report{Phase: PhaseFirstHalf}) {
		t.Fatalf("lagging report should not change state")
	}
	if c.Phase() != PhaseHalfTime {
		t.Fatalf("expected half time, got %s", c.Phase())
	}
}

func TestReconcileAdoptsNewBackendPhase(t *testing.T) {
	c, observer, journal := newTestController(t, &fakeBackend{}, PhaseNotStarted)
	ctx := context.Background()
	started := time.Date(2024, 5, 10, 18, 1, 0, 0, time.UTC)

	if !c.Reconcile(ctx, Report{Phase: PhaseFirstHalf, FirstHalfStartedAt: &started}) {
		t.Fatalf("expected new backend phase to be adopted")
	}
	s := c.Snapshot()
	if s.Phase != PhaseFirstHalf || s.FirstHalfStartedAt == nil || !s.FirstHalfStartedAt.Equal(started) {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if c.Reconcile(ctx, Report{Phase: PhaseFirstHalf}) {
		t.Fatalf("repeated report should be a no-op")
	}
	if len(observer.phases) != 1 {
		t.Fatalf("expected one phase change, got %v", observer.phases)
	}
	if len(journal.events) != 1 || journal.events[0].Outcome != OutcomeAdopted {
		t.Fatalf("expected one adopted event, got %+v", journal.events)
	}

	if c.Reconcile(ctx, Report{Phase: Phase("X")}) {
		t.Fatalf("unknown phase should be ignored")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{MatchID: 1}); err == nil {
		t.Fatalf("expected error without backend")
	}
	if _, err := New(Config{Backend: &fakeBackend{}}); err == nil {
		t.Fatalf("expected error without match ID")
	}
	if _, err := New(Config{MatchID: 1, Backend: &fakeBackend{}, Initial: Report{Phase: "Z"}}); err == nil {
		t.Fatalf("expected error for invalid initial phase")
	}
	c, err := New(Config{MatchID: 1, Backend: &fakeBackend{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.Phase() != PhaseNotStarted {
		t.Fatalf("expected default phase not started, got %s", c.Phase())
	}
}
