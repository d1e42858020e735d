package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/codr1/leaguedesk/internal/standings"
)

type zoneResponse struct {
	ID        ID             `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Standings []standingJSON `json:"standings"`
}

type standingJSON struct {
	TeamID         ID        `json:"teamId"`
	TeamName       string    `json:"teamName"`
	Played         Number    `json:"played"`
	Won            Number    `json:"won"`
	Drawn          Number    `json:"drawn"`
	Lost           Number    `json:"lost"`
	GoalsFor       Number    `json:"goalsFor"`
	GoalsAgainst   Number    `json:"goalsAgainst"`
	Points         Number    `json:"points"`
	PointsDeducted Number    `json:"pointsDeducted"`
	Live           *liveJSON `json:"live"`
}

type liveJSON struct {
	Points       Number `json:"points"`
	GoalsFor     Number `json:"goalsFor"`
	GoalsAgainst Number `json:"goalsAgainst"`
}

// CategoryZones fetches the zones of a category. Concurrent calls for the
// same category share one backend request. The shared request is detached
// from any one caller and bounded by the client timeout, so a caller that
// gives up only stops its own wait.
func (c *Client) CategoryZones(ctx context.Context, categoryID int64) ([]standings.Zone, error) {
	if categoryID <= 0 {
		return nil, fmt.Errorf("category ID must be positive, got %d", categoryID)
	}
	key := fmt.Sprintf("category:%d", categoryID)
	ch := c.zones.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		var resp []zoneResponse
		if err := c.do(fetchCtx, http.MethodGet, fmt.Sprintf("/categories/%d/zones", categoryID), nil, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch zones for category %d: %w", categoryID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return toZones(res.Val.([]zoneResponse)), nil
	}
}

func toZones(resp []zoneResponse) []standings.Zone {
	zones := make([]standings.Zone, 0, len(resp))
	for _, z := range resp {
		rows := make([]standings.Row, 0, len(z.Standings))
		for _, s := range z.Standings {
			rows = append(rows, s.toRow())
		}
		zones = append(zones, standings.Zone{
			ID:   int64(z.ID),
			Name: z.Name,
			Type: zoneType(z.Type),
			Rows: rows,
		})
	}
	return zones
}

func (s standingJSON) toRow() standings.Row {
	row := standings.Row{
		TeamID:         int64(s.TeamID),
		TeamName:       s.TeamName,
		Played:         nonNegative(s.Played),
		Won:            nonNegative(s.Won),
		Drawn:          nonNegative(s.Drawn),
		Lost:           nonNegative(s.Lost),
		GoalsFor:       nonNegative(s.GoalsFor),
		GoalsAgainst:   nonNegative(s.GoalsAgainst),
		Points:         s.Points.Int(),
		PointsDeducted: nonNegative(s.PointsDeducted),
		Source:         standings.SourceStatic,
	}
	if s.Live != nil {
		row.Source = standings.SourceLive
		row.Live = &standings.Figures{
			Points:       s.Live.Points.Int(),
			GoalsFor:     nonNegative(s.Live.GoalsFor),
			GoalsAgainst: nonNegative(s.Live.GoalsAgainst),
		}
	}
	return row
}

func zoneType(raw string) standings.ZoneType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "knockout", "elimination", "single_elimination", "playoff":
		return standings.ZoneKnockout
	default:
		return standings.ZoneRoundRobin
	}
}

func nonNegative(n Number) int {
	if n < 0 {
		return 0
	}
	return int(n)
}
