package db

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type MatchPhaseEvent struct {
	ID         int64     `json:"id"`
	MatchID    int64     `json:"matchId"`
	Action     string    `json:"action"`
	FromPhase  string    `json:"fromPhase"`
	ToPhase    string    `json:"toPhase"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message"`
	Tenant     string    `json:"tenant"`
	OccurredAt time.Time `json:"occurredAt"`
}

type CreateMatchPhaseEventParams struct {
	MatchID    int64
	Action     string
	FromPhase  string
	ToPhase    string
	Outcome    string
	Message    string
	Tenant     string
	OccurredAt time.Time
}

const createMatchPhaseEvent = `
INSERT INTO match_phase_events (
    match_id, action, from_phase, to_phase, outcome, message, tenant, occurred_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateMatchPhaseEvent(ctx context.Context, arg CreateMatchPhaseEventParams) (MatchPhaseEvent, error) {
	occurredAt := arg.OccurredAt.UTC()
	result, err := q.db.ExecContext(ctx, createMatchPhaseEvent,
		arg.MatchID,
		arg.Action,
		arg.FromPhase,
		arg.ToPhase,
		arg.Outcome,
		arg.Message,
		arg.Tenant,
		occurredAt,
	)
	if err != nil {
		return MatchPhaseEvent{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return MatchPhaseEvent{}, err
	}
	return MatchPhaseEvent{
		ID:         id,
		MatchID:    arg.MatchID,
		Action:     arg.Action,
		FromPhase:  arg.FromPhase,
		ToPhase:    arg.ToPhase,
		Outcome:    arg.Outcome,
		Message:    arg.Message,
		Tenant:     arg.Tenant,
		OccurredAt: occurredAt,
	}, nil
}

type ListMatchPhaseEventsParams struct {
	MatchID int64
	Limit   int64
}

const listMatchPhaseEvents = `
SELECT id, match_id, action, from_phase, to_phase, outcome, message, tenant, occurred_at
FROM match_phase_events
WHERE match_id = ?
ORDER BY occurred_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListMatchPhaseEvents(ctx context.Context, arg ListMatchPhaseEventsParams) ([]MatchPhaseEvent, error) {
	rows, err := q.db.QueryContext(ctx, listMatchPhaseEvents, arg.MatchID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []MatchPhaseEvent{}
	for rows.Next() {
		var e MatchPhaseEvent
		if err := rows.Scan(
			&e.ID,
			&e.MatchID,
			&e.Action,
			&e.FromPhase,
			&e.ToPhase,
			&e.Outcome,
			&e.Message,
			&e.Tenant,
			&e.OccurredAt,
		); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteMatchPhaseEventsBefore = `
DELETE FROM match_phase_events WHERE occurred_at < ?
`

func (q *Queries) DeleteMatchPhaseEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteMatchPhaseEventsBefore, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
