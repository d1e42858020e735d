// internal/api/categories/handlers.go
package categories

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguedesk/internal/api/apiutil"
	"github.com/codr1/leaguedesk/internal/backend"
	"github.com/codr1/leaguedesk/internal/standings"
)

const (
	standingsFetchTimeout = 10 * time.Second
	combinedQueryKey      = "combined"
)

// ZoneSource loads the zones of a category from the backend.
type ZoneSource interface {
	CategoryZones(ctx context.Context, categoryID int64) ([]standings.Zone, error)
}

var (
	zones    ZoneSource
	location = time.UTC
	now      = time.Now
)

type rankedRow struct {
	Position int `json:"position"`
	standings.Row
	FinalPoints    int `json:"finalPoints"`
	GoalDifference int `json:"goalDifference"`
}

type tableResponse struct {
	ZoneID   int64       `json:"zoneId"`
	ZoneName string      `json:"zoneName"`
	Rows     []rankedRow `json:"rows"`
}

type combinedResponse struct {
	CategoryID int64       `json:"categoryId"`
	Combined   bool        `json:"combined"`
	Rows       []rankedRow `json:"rows"`
}

type zonesResponse struct {
	CategoryID int64           `json:"categoryId"`
	Combined   bool            `json:"combined"`
	Tables     []tableResponse `json:"tables"`
}

// InitHandlers must be called during server startup before handling requests.
// loc is the tenant timezone used to stamp rows.
func InitHandlers(source ZoneSource, loc *time.Location) {
	zones = source
	if loc != nil {
		location = loc
	}
}

// GET /api/v1/categories/{id}/standings
func HandleStandings(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if zones == nil {
		logger.Error().Msg("Standings source not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	categoryID, err := apiutil.PathID(r, "category_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	combined, err := apiutil.QueryBool(r, combinedQueryKey, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), standingsFetchTimeout)
	defer cancel()

	categoryZones, err := zones.CategoryZones(ctx, categoryID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			http.Error(w, "Category not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("category_id", categoryID).Msg("Failed to load category zones")
		http.Error(w, "Failed to load standings", http.StatusBadGateway)
		return
	}

	var resp any
	stamp := now().In(location)
	if combined {
		resp = combinedResponse{
			CategoryID: categoryID,
			Combined:   true,
			Rows:       rankRows(standings.Aggregate(categoryZones, stamp)),
		}
	} else {
		tables := standings.Tables(categoryZones, stamp)
		out := zonesResponse{CategoryID: categoryID, Tables: make([]tableResponse, 0, len(tables))}
		for _, table := range tables {
			out.Tables = append(out.Tables, tableResponse{
				ZoneID:   table.ZoneID,
				ZoneName: table.ZoneName,
				Rows:     rankRows(table.Rows),
			})
		}
		resp = out
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Int64("category_id", categoryID).Msg("Failed to write standings response")
	}
}

func rankRows(rows []standings.Row) []rankedRow {
	ranked := make([]rankedRow, 0, len(rows))
	for i, row := range rows {
		ranked = append(ranked, rankedRow{
			Position:       i + 1,
			Row:            row,
			FinalPoints:    row.FinalPoints(),
			GoalDifference: row.GoalDifference(),
		})
	}
	return ranked
}
