// internal/api/matches/handlers.go
package matches

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguedesk/internal/api/apiutil"
	"github.com/codr1/leaguedesk/internal/api/authz"
	"github.com/codr1/leaguedesk/internal/backend"
	appdb "github.com/codr1/leaguedesk/internal/db"
	"github.com/codr1/leaguedesk/internal/matchphase"
)

const (
	matchOpenTimeout       = 10 * time.Second
	matchTransitionTimeout = 15 * time.Second
	eventsQueryTimeout     = 5 * time.Second
	matchIDField           = "match_id"
)

// Controllers is the set of matches open for live operation.
type Controllers interface {
	Open(ctx context.Context, matchID int64) (*matchphase.Controller, error)
	Get(matchID int64) (*matchphase.Controller, error)
}

// EventLog reads back recorded phase events.
type EventLog interface {
	Recent(ctx context.Context, matchID int64, limit int) ([]appdb.MatchPhaseEvent, error)
}

var (
	controllers Controllers
	events      EventLog
)

type transitionRequest struct {
	Action string `json:"action"`
}

type transitionErrorResponse struct {
	Error    string               `json:"error"`
	Snapshot *matchphase.Snapshot `json:"snapshot,omitempty"`
}

type eventsResponse struct {
	MatchID int64                   `json:"matchId"`
	Events  []appdb.MatchPhaseEvent `json:"events"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(registry Controllers, journal EventLog) {
	controllers = registry
	events = journal
}

// POST /api/v1/matches/{id}/open
func HandleOpenMatch(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if controllers == nil {
		logger.Error().Msg("Match registry not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	matchID, err := apiutil.PathID(r, matchIDField)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchOpenTimeout)
	defer cancel()

	controller, err := controllers.Open(ctx, matchID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			http.Error(w, "Match not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to open match")
		http.Error(w, "Failed to load match", http.StatusBadGateway)
		return
	}

	operatorLogger(r.Context(), logger).Info().Int64("match_id", matchID).Msg("Match opened")
	if err := apiutil.WriteJSON(w, http.StatusOK, controller.Snapshot()); err != nil {
		logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to write match snapshot")
	}
}

// GET /api/v1/matches/{id}/phase
func HandleMatchPhase(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	controller, matchID, ok := openController(w, r)
	if !ok {
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, controller.Snapshot()); err != nil {
		logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to write match snapshot")
	}
}

// POST /api/v1/matches/{id}/transitions
func HandleTransition(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	controller, matchID, ok := openController(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	action, err := matchphase.ParseAction(strings.TrimSpace(req.Action))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchTransitionTimeout)
	defer cancel()

	err = controller.Transition(ctx, action)
	snapshot := controller.Snapshot()
	if err != nil {
		status, message := transitionFailure(err)
		operatorLogger(r.Context(), logger).Warn().
			Err(err).
			Int64("match_id", matchID).
			Str("action", string(action)).
			Int("status", status).
			Msg("Transition failed")
		if writeErr := apiutil.WriteJSON(w, status, transitionErrorResponse{Error: message, Snapshot: &snapshot}); writeErr != nil {
			logger.Error().Err(writeErr).Int64("match_id", matchID).Msg("Failed to write transition error")
		}
		return
	}

	operatorLogger(r.Context(), logger).Info().
		Int64("match_id", matchID).
		Str("action", string(action)).
		Str("phase", snapshot.Phase.String()).
		Msg("Transition applied")
	if err := apiutil.WriteJSON(w, http.StatusOK, snapshot); err != nil {
		logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to write match snapshot")
	}
}

// GET /api/v1/matches/{id}/events
func HandleMatchEvents(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if events == nil {
		logger.Error().Msg("Match journal not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	matchID, err := apiutil.PathID(r, matchIDField)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := apiutil.QueryLimit(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), eventsQueryTimeout)
	defer cancel()

	recent, err := events.Recent(ctx, matchID, limit)
	if err != nil {
		logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to list match events")
		http.Error(w, "Failed to load match events", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, eventsResponse{MatchID: matchID, Events: recent}); err != nil {
		logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to write match events")
	}
}

func openController(w http.ResponseWriter, r *http.Request) (*matchphase.Controller, int64, bool) {
	if controllers == nil {
		log.Ctx(r.Context()).Error().Msg("Match registry not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, 0, false
	}

	matchID, err := apiutil.PathID(r, matchIDField)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, 0, false
	}

	controller, err := controllers.Get(matchID)
	if err != nil {
		if errors.Is(err, matchphase.ErrMatchNotOpen) {
			http.Error(w, "Match is not open", http.StatusNotFound)
			return nil, 0, false
		}
		log.Ctx(r.Context()).Error().Err(err).Int64("match_id", matchID).Msg("Failed to look up match")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, 0, false
	}
	return controller, matchID, true
}

// transitionFailure maps a Transition error to a status and the message
// shown to the operator.
func transitionFailure(err error) (int, string) {
	switch {
	case errors.Is(err, matchphase.ErrTransitionPending):
		return http.StatusConflict, "Another phase change is still in progress"
	case errors.Is(err, matchphase.ErrInvalidTransition):
		return http.StatusConflict, "That phase change is not allowed right now"
	case errors.Is(err, matchphase.ErrUnknownAction):
		return http.StatusBadRequest, "Unknown match action"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, matchphase.OperatorMessage(err)
	default:
		return http.StatusBadGateway, matchphase.OperatorMessage(err)
	}
}

func operatorLogger(ctx context.Context, logger *zerolog.Logger) *zerolog.Logger {
	operator := authz.OperatorFromContext(ctx)
	if operator == nil {
		return logger
	}
	l := logger.With().Str("operator_id", operator.ID).Logger()
	return &l
}
