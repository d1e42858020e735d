// Package matchphase drives the clock phase of a live match. Operator
// actions are applied optimistically and rolled back when the backend
// rejects them.
package matchphase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const fallbackErrorMessage = "Could not update the match phase. Please try again."

var (
	ErrInvalidTransition = errors.New("transition not allowed from current phase")
	ErrTransitionPending = errors.New("another transition is still in progress")
	ErrUnknownAction     = errors.New("unknown match action")
)

// Backend confirms phase changes with the system of record.
type Backend interface {
	Transition(ctx context.Context, matchID int64, action Action) (TransitionResult, error)
}

type TransitionResult struct {
	// StartedAt is set by the backend for actions that start a half.
	StartedAt *time.Time
}

// PublicMessage is implemented by errors that carry a message meant for
// the operator.
type PublicMessage interface {
	PublicMessage() string
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	MatchID int64  `json:"matchId"`
	Level   Level  `json:"level"`
	Action  Action `json:"action"`
	Message string `json:"message"`
}

type Snapshot struct {
	MatchID             int64      `json:"matchId"`
	Phase               Phase      `json:"phase"`
	PhaseName           string     `json:"phaseName"`
	FirstHalfStartedAt  *time.Time `json:"firstHalfStartedAt,omitempty"`
	SecondHalfStartedAt *time.Time `json:"secondHalfStartedAt,omitempty"`
	Pending             bool       `json:"pending"`
}

// Observer is told about every phase change and operator notification.
type Observer interface {
	PhaseChanged(ctx context.Context, s Snapshot)
	Notify(ctx context.Context, n Notification)
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeReverted  Outcome = "reverted"
	OutcomeAdopted   Outcome = "adopted"
)

type Event struct {
	MatchID    int64
	Action     Action
	FromPhase  Phase
	ToPhase    Phase
	Outcome    Outcome
	Message    string
	OccurredAt time.Time
}

// Journal keeps a record of what happened to a match.
type Journal interface {
	Record(ctx context.Context, e Event) error
}

// Report is the match state as returned by a backend fetch.
type Report struct {
	Phase               Phase
	FirstHalfStartedAt  *time.Time
	SecondHalfStartedAt *time.Time
}

type Config struct {
	MatchID  int64
	Backend  Backend
	Observer Observer
	Journal  Journal
	// Initial is the state the backend reported when the match was opened.
	Initial Report
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller owns the phase of one match. It is safe for concurrent use;
// only one transition may be in flight at a time.
type Controller struct {
	matchID  int64
	backend  Backend
	observer Observer
	journal  Journal
	now      func() time.Time

	mu                  sync.Mutex
	phase               Phase
	firstHalfStartedAt  *time.Time
	secondHalfStartedAt *time.Time
	// lastBackendPhase is the last phase adopted from a backend fetch.
	lastBackendPhase Phase
	// confirmed is the latest phase the backend agreed to, by fetch or by
	// answering a transition.
	confirmed Phase
	pending   bool
}

func New(cfg Config) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errors.New("match phase controller requires a backend")
	}
	if cfg.MatchID <= 0 {
		return nil, errors.New("match ID is required")
	}
	initial := cfg.Initial.Phase
	if initial == "" {
		initial = PhaseNotStarted
	}
	if !initial.Valid() {
		return nil, fmt.Errorf("invalid initial phase %q", cfg.Initial.Phase)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		matchID:             cfg.MatchID,
		backend:             cfg.Backend,
		observer:            cfg.Observer,
		journal:             cfg.Journal,
		now:                 now,
		phase:               initial,
		firstHalfStartedAt:  copyTime(cfg.Initial.FirstHalfStartedAt),
		secondHalfStartedAt: copyTime(cfg.Initial.SecondHalfStartedAt),
		lastBackendPhase:    initial,
		confirmed:           initial,
	}, nil
}

func (c *Controller) MatchID() int64 {
	return c.matchID
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		MatchID:             c.matchID,
		Phase:               c.phase,
		PhaseName:           c.phase.String(),
		FirstHalfStartedAt:  copyTime(c.firstHalfStartedAt),
		SecondHalfStartedAt: copyTime(c.secondHalfStartedAt),
		Pending:             c.pending,
	}
}

// Transition applies action locally, asks the backend to confirm it and
// reverts to the previous phase if the backend refuses. A cancelled ctx
// counts as a refusal.
func (c *Controller) Transition(ctx context.Context, action Action) error {
	target, ok := action.Target()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	logger := log.Ctx(ctx).With().
		Str("component", "match_phase").
		Int64("match_id", c.matchID).
		Str("action", string(action)).
		Logger()

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		logger.Warn().Msg("Transition rejected while another is pending")
		return ErrTransitionPending
	}
	previous := c.phase
	if !action.Allowed(previous) {
		c.mu.Unlock()
		logger.Warn().Str("phase", previous.String()).Msg("Transition not allowed")
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, previous)
	}
	c.phase = target
	c.pending = true
	optimistic := c.snapshotLocked()
	c.mu.Unlock()

	c.phaseChanged(ctx, optimistic)
	logger.Debug().
		Str("from", previous.String()).
		Str("to", target.String()).
		Msg("Applied optimistic transition")

	// Only the backend's own answer decides the outcome. A context cancelled
	// after the backend confirmed does not undo the change.
	result, err := c.backend.Transition(ctx, c.matchID, action)

	c.mu.Lock()
	c.pending = false
	if err != nil {
		c.phase = previous
	} else {
		c.confirmed = target
		if result.StartedAt != nil {
			switch action {
			case ActionStartMatch:
				c.firstHalfStartedAt = copyTime(result.StartedAt)
			case ActionStartSecondHalf:
				c.secondHalfStartedAt = copyTime(result.StartedAt)
			}
		}
	}
	final := c.snapshotLocked()
	c.mu.Unlock()

	// Journal and observers must still run when the caller's context is
	// already cancelled.
	notifyCtx := context.WithoutCancel(ctx)
	c.phaseChanged(notifyCtx, final)

	if err != nil {
		message := OperatorMessage(err)
		logger.Error().Err(err).Str("reverted_to", previous.String()).Msg("Backend rejected transition")
		c.notify(notifyCtx, Notification{MatchID: c.matchID, Level: LevelError, Action: action, Message: message})
		c.record(notifyCtx, Event{
			MatchID:   c.matchID,
			Action:    action,
			FromPhase: previous,
			ToPhase:   target,
			Outcome:   OutcomeReverted,
			Message:   message,
		})
		return fmt.Errorf("%s match %d: %w", action, c.matchID, err)
	}

	message := rules[action].success
	logger.Info().Str("phase", target.String()).Msg("Transition confirmed")
	c.notify(notifyCtx, Notification{MatchID: c.matchID, Level: LevelSuccess, Action: action, Message: message})
	c.record(notifyCtx, Event{
		MatchID:   c.matchID,
		Action:    action,
		FromPhase: previous,
		ToPhase:   target,
		Outcome:   OutcomeConfirmed,
		Message:   message,
	})
	return nil
}

// Reconcile folds a freshly fetched backend state into the controller. The
// report is ignored while a transition is in flight, when it repeats the
// last adopted backend phase, when it lags behind a phase the backend
// already confirmed, or once a terminal phase is confirmed. Finished and
// suspended are final, so a later report naming the other one is stale.
// It reports whether the state changed.
func (c *Controller) Reconcile(ctx context.Context, report Report) bool {
	logger := log.Ctx(ctx).With().
		Str("component", "match_phase").
		Int64("match_id", c.matchID).
		Str("reported", report.Phase.String()).
		Logger()

	if !report.Phase.Valid() {
		logger.Warn().Msg("Ignoring report with unknown phase")
		return false
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		logger.Debug().Str("decision", "skip_pending").Msg("Transition in flight")
		return false
	}
	if report.Phase == c.lastBackendPhase {
		c.mu.Unlock()
		return false
	}
	if c.confirmed.Terminal() {
		c.mu.Unlock()
		logger.Debug().
			Str("decision", "skip_terminal").
			Str("confirmed", c.confirmed.String()).
			Msg("Match already in a terminal phase")
		return false
	}
	if report.Phase.Before(c.confirmed) {
		c.mu.Unlock()
		logger.Debug().
			Str("decision", "skip_stale").
			Str("confirmed", c.confirmed.String()).
			Msg("Backend report is behind confirmed phase")
		return false
	}

	previous := c.phase
	c.lastBackendPhase = report.Phase
	c.confirmed = report.Phase
	c.phase = report.Phase
	if report.FirstHalfStartedAt != nil {
		c.firstHalfStartedAt = copyTime(report.FirstHalfStartedAt)
	}
	if report.SecondHalfStartedAt != nil {
		c.secondHalfStartedAt = copyTime(report.SecondHalfStartedAt)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if previous == report.Phase {
		return false
	}

	logger.Info().Str("from", previous.String()).Msg("Adopted backend phase")
	c.phaseChanged(ctx, snapshot)
	c.record(ctx, Event{
		MatchID:   c.matchID,
		FromPhase: previous,
		ToPhase:   report.Phase,
		Outcome:   OutcomeAdopted,
	})
	return true
}

func (c *Controller) phaseChanged(ctx context.Context, s Snapshot) {
	if c.observer != nil {
		c.observer.PhaseChanged(ctx, s)
	}
}

func (c *Controller) notify(ctx context.Context, n Notification) {
	if c.observer != nil {
		c.observer.Notify(ctx, n)
	}
}

func (c *Controller) record(ctx context.Context, e Event) {
	if c.journal == nil {
		return
	}
	e.OccurredAt = c.now()
	if err := c.journal.Record(ctx, e); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Int64("match_id", e.MatchID).
			Str("outcome", string(e.Outcome)).
			Msg("Failed to record match phase event")
	}
}

// OperatorMessage is the text shown to the operator for a failed
// transition: the backend's own message when it sent one.
func OperatorMessage(err error) string {
	var pm PublicMessage
	if errors.As(err, &pm) {
		if msg := pm.PublicMessage(); msg != "" {
			return msg
		}
	}
	return fallbackErrorMessage
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
