// Package standings ranks per-zone standing rows for display.
package standings

import (
	"sort"
	"time"
)

type ZoneType string

const (
	ZoneRoundRobin ZoneType = "round_robin"
	ZoneKnockout   ZoneType = "knockout"
)

// Source tells static rows (last finalized figures) apart from rows that
// carry figures captured from a match still in progress.
type Source string

const (
	SourceStatic Source = "static"
	SourceLive   Source = "live"
)

// Figures are the values used for ranking.
type Figures struct {
	Points       int `json:"points"`
	GoalsFor     int `json:"goalsFor"`
	GoalsAgainst int `json:"goalsAgainst"`
}

type Row struct {
	TeamID         int64     `json:"teamId"`
	TeamName       string    `json:"teamName"`
	Played         int       `json:"played"`
	Won            int       `json:"won"`
	Drawn          int       `json:"drawn"`
	Lost           int       `json:"lost"`
	GoalsFor       int       `json:"goalsFor"`
	GoalsAgainst   int       `json:"goalsAgainst"`
	Points         int       `json:"points"`
	PointsDeducted int       `json:"pointsDeducted"`
	Source         Source    `json:"source"`
	Live           *Figures  `json:"live,omitempty"`
	LastUpdated    time.Time `json:"lastUpdated,omitempty"`
}

type Zone struct {
	ID   int64    `json:"id"`
	Name string   `json:"name"`
	Type ZoneType `json:"type"`
	Rows []Row    `json:"rows"`
}

// Table is one zone's rows, kept in backend order.
type Table struct {
	ZoneID   int64  `json:"zoneId"`
	ZoneName string `json:"zoneName"`
	Rows     []Row  `json:"rows"`
}

// IsLive reports whether the row's live figures override its static ones.
// A row tagged live without figures ranks as static.
func (r Row) IsLive() bool {
	return r.Source == SourceLive && r.Live != nil
}

// Effective returns the figures used for ranking.
func (r Row) Effective() Figures {
	if r.IsLive() {
		return *r.Live
	}
	return Figures{
		Points:       r.Points,
		GoalsFor:     r.GoalsFor,
		GoalsAgainst: r.GoalsAgainst,
	}
}

// FinalPoints is Points minus PointsDeducted. Live points already come
// final from the backend and are returned as is.
func (r Row) FinalPoints() int {
	if r.IsLive() {
		return r.Live.Points
	}
	return r.Points - r.PointsDeducted
}

func (r Row) GoalDifference() int {
	f := r.Effective()
	return f.GoalsFor - f.GoalsAgainst
}

// Aggregate builds the table shown for a category. With a single
// round-robin zone the rows come back in backend order; with several they
// are merged and ranked by final points, goal difference and goals scored.
// Knockout zones never take part. The input is not modified.
func Aggregate(zones []Zone, now time.Time) []Row {
	roundRobin := roundRobinZones(zones)
	stamp := startOfDay(now)

	switch len(roundRobin) {
	case 0:
		return []Row{}
	case 1:
		return annotate(roundRobin[0].Rows, stamp)
	}

	total := 0
	for _, zone := range roundRobin {
		total += len(zone.Rows)
	}
	combined := make([]Row, 0, total)
	for _, zone := range roundRobin {
		combined = append(combined, annotate(zone.Rows, stamp)...)
	}

	Rank(combined)
	return combined
}

// Tables returns every round-robin zone as its own table, unranked.
func Tables(zones []Zone, now time.Time) []Table {
	roundRobin := roundRobinZones(zones)
	stamp := startOfDay(now)

	tables := make([]Table, 0, len(roundRobin))
	for _, zone := range roundRobin {
		tables = append(tables, Table{
			ZoneID:   zone.ID,
			ZoneName: zone.Name,
			Rows:     annotate(zone.Rows, stamp),
		})
	}
	return tables
}

// Rank sorts rows in place. Rows equal on every key keep their order.
func Rank(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		pointsI, pointsJ := rows[i].FinalPoints(), rows[j].FinalPoints()
		if pointsI != pointsJ {
			return pointsI > pointsJ
		}
		diffI, diffJ := rows[i].GoalDifference(), rows[j].GoalDifference()
		if diffI != diffJ {
			return diffI > diffJ
		}
		return rows[i].Effective().GoalsFor > rows[j].Effective().GoalsFor
	})
}

func roundRobinZones(zones []Zone) []Zone {
	out := make([]Zone, 0, len(zones))
	for _, zone := range zones {
		if zone.Type == ZoneKnockout {
			continue
		}
		out = append(out, zone)
	}
	return out
}

// annotate copies rows so callers never see their input touched.
func annotate(rows []Row, stamp time.Time) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		if row.Live != nil {
			live := *row.Live
			row.Live = &live
		}
		row.LastUpdated = stamp
		out[i] = row
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
