package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/codr1/leaguedesk/internal/matchphase"
)

var actionPaths = map[matchphase.Action]string{
	matchphase.ActionStartMatch:      "start",
	matchphase.ActionEndFirstHalf:    "end-first-half",
	matchphase.ActionStartSecondHalf: "start-second-half",
	matchphase.ActionEndMatch:        "end",
	matchphase.ActionFinalizeMatch:   "finalize",
	matchphase.ActionSuspendMatch:    "suspend",
}

type matchResponse struct {
	ID                  ID         `json:"id"`
	Phase               string     `json:"phase"`
	FirstHalfStartedAt  *time.Time `json:"firstHalfStartedAt"`
	SecondHalfStartedAt *time.Time `json:"secondHalfStartedAt"`
}

type transitionResponse struct {
	StartedAt *time.Time `json:"startedAt"`
}

// MatchReport fetches the backend's view of a match.
func (c *Client) MatchReport(ctx context.Context, matchID int64) (matchphase.Report, error) {
	var resp matchResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/matches/%d", matchID), nil, &resp); err != nil {
		return matchphase.Report{}, err
	}
	phase, err := matchphase.ParsePhase(resp.Phase)
	if err != nil {
		return matchphase.Report{}, fmt.Errorf("match %d: %w", matchID, err)
	}
	return matchphase.Report{
		Phase:               phase,
		FirstHalfStartedAt:  resp.FirstHalfStartedAt,
		SecondHalfStartedAt: resp.SecondHalfStartedAt,
	}, nil
}

// Transition calls the endpoint that applies action to the match.
func (c *Client) Transition(ctx context.Context, matchID int64, action matchphase.Action) (matchphase.TransitionResult, error) {
	verb, ok := actionPaths[action]
	if !ok {
		return matchphase.TransitionResult{}, fmt.Errorf("%w: %q", matchphase.ErrUnknownAction, action)
	}
	var resp transitionResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/matches/%d/%s", matchID, verb), nil, &resp); err != nil {
		return matchphase.TransitionResult{}, err
	}
	if !action.StartsClock() {
		return matchphase.TransitionResult{}, nil
	}
	return matchphase.TransitionResult{StartedAt: resp.StartedAt}, nil
}
