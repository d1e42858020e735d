package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codr1/leaguedesk/internal/matchphase"
)

const defaultJournalListLimit = 50

// Journal stores match phase events in match_phase_events.
type Journal struct {
	db     *DB
	tenant string
}

func NewJournal(database *DB, tenant string) (*Journal, error) {
	if database == nil {
		return nil, errors.New("journal requires a database")
	}
	return &Journal{db: database, tenant: tenant}, nil
}

func (j *Journal) Record(ctx context.Context, e matchphase.Event) error {
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err := j.db.Queries.CreateMatchPhaseEvent(ctx, CreateMatchPhaseEventParams{
		MatchID:    e.MatchID,
		Action:     string(e.Action),
		FromPhase:  string(e.FromPhase),
		ToPhase:    string(e.ToPhase),
		Outcome:    string(e.Outcome),
		Message:    e.Message,
		Tenant:     j.tenant,
		OccurredAt: occurredAt,
	})
	if err != nil {
		return fmt.Errorf("record phase event for match %d: %w", e.MatchID, err)
	}
	return nil
}

// Recent returns the newest events for a match, newest first.
func (j *Journal) Recent(ctx context.Context, matchID int64, limit int) ([]MatchPhaseEvent, error) {
	if limit <= 0 || limit > defaultJournalListLimit {
		limit = defaultJournalListLimit
	}
	return j.db.Queries.ListMatchPhaseEvents(ctx, ListMatchPhaseEventsParams{
		MatchID: matchID,
		Limit:   int64(limit),
	})
}

// Prune removes events older than retention in one transaction.
func (j *Journal) Prune(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be positive")
	}
	var removed int64
	err := j.db.RunInTx(ctx, func(txdb *DB) error {
		var err error
		removed, err = txdb.Queries.DeleteMatchPhaseEventsBefore(ctx, now.Add(-retention))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune phase events: %w", err)
	}
	return removed, nil
}
