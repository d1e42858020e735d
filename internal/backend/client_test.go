package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/codr1/leaguedesk/internal/matchphase"
	"github.com/codr1/leaguedesk/internal/standings"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL: server.URL + "/",
		Token:   "service-token",
		Tenant:  "liga-norte",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "  "}); !errors.Is(err, ErrNoBaseURL) {
		t.Fatalf("expected ErrNoBaseURL, got %v", err)
	}
}

func TestCategoryZonesDecodesLenientRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/categories/12/zones" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer service-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := r.Header.Get(tenantHeader); got != "liga-norte" {
			t.Errorf("unexpected tenant header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 1, "name": "Zona A", "type": "round_robin", "standings": [
				{"teamId": 10, "teamName": "Norte", "points": "7", "goalsFor": 9, "goalsAgainst": null, "pointsDeducted": -2},
				{"teamId": "11", "teamName": "Sur", "points": 4.0, "goalsFor": "x", "live": {"points": 7, "goalsFor": 5, "goalsAgainst": 1}}
			]},
			{"id": "2", "name": "Llave", "type": "knockout", "standings": []},
			{"id": 3, "name": "Zona B", "standings": [{"teamId": 12, "teamName": "Este"}]}
		]`))
	})

	zones, err := client.CategoryZones(context.Background(), 12)
	if err != nil {
		t.Fatalf("category zones: %v", err)
	}
	if len(zones) != 3 {
		t.Fatalf("expected 3 zones, got %d", len(zones))
	}
	if zones[1].Type != standings.ZoneKnockout || zones[2].Type != standings.ZoneRoundRobin {
		t.Fatalf("unexpected zone types %q, %q", zones[1].Type, zones[2].Type)
	}

	norte := zones[0].Rows[0]
	if norte.Points != 7 || norte.GoalsFor != 9 || norte.GoalsAgainst != 0 || norte.PointsDeducted != 0 {
		t.Fatalf("unexpected row %+v", norte)
	}
	if norte.Source != standings.SourceStatic || norte.Live != nil {
		t.Fatalf("expected static row, got %+v", norte)
	}

	sur := zones[0].Rows[1]
	if sur.TeamID != 11 || sur.Points != 4 || sur.GoalsFor != 0 {
		t.Fatalf("unexpected row %+v", sur)
	}
	if sur.Source != standings.SourceLive || sur.Live == nil || sur.Live.Points != 7 {
		t.Fatalf("expected live row, got %+v", sur)
	}

	este := zones[2].Rows[0]
	if este.TeamID != 12 || este.Points != 0 || este.Played != 0 {
		t.Fatalf("missing fields should default to zero, got %+v", este)
	}
}

func TestCategoryZonesSharedFetchSurvivesCallerCancel(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(arrived) })
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 1, "name": "Zona A", "standings": [{"teamId": 10, "teamName": "Norte", "points": 3}]}]`))
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.CategoryZones(firstCtx, 7)
		firstErr <- err
	}()
	<-arrived

	type result struct {
		zones []standings.Zone
		err   error
	}
	second := make(chan result, 1)
	go func() {
		zones, err := client.CategoryZones(context.Background(), 7)
		second <- result{zones: zones, err: err}
	}()
	// Let the second caller join the in-flight request.
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller to see context.Canceled, got %v", err)
	}
	close(release)

	select {
	case res := <-second:
		if res.err != nil {
			t.Fatalf("second caller should not be cancelled, got %v", res.err)
		}
		if len(res.zones) != 1 || res.zones[0].Rows[0].Points != 3 {
			t.Fatalf("unexpected zones %+v", res.zones)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second caller never returned")
	}
}

func TestMatchReport(t *testing.T) {
	started := time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/5" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                 5,
			"phase":              "C1",
			"firstHalfStartedAt": started,
		})
	})

	report, err := client.MatchReport(context.Background(), 5)
	if err != nil {
		t.Fatalf("match report: %v", err)
	}
	if report.Phase != matchphase.PhaseFirstHalf {
		t.Fatalf("expected first half, got %s", report.Phase)
	}
	if report.FirstHalfStartedAt == nil || !report.FirstHalfStartedAt.Equal(started) {
		t.Fatalf("unexpected first half start %v", report.FirstHalfStartedAt)
	}

	_, err = client.MatchReport(context.Background(), 6)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionEndpoints(t *testing.T) {
	started := time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"startedAt": started})
	})

	tests := []struct {
		action matchphase.Action
		path   string
		clock  bool
	}{
		{matchphase.ActionStartMatch, "/matches/9/start", true},
		{matchphase.ActionEndFirstHalf, "/matches/9/end-first-half", false},
		{matchphase.ActionStartSecondHalf, "/matches/9/start-second-half", true},
		{matchphase.ActionEndMatch, "/matches/9/end", false},
		{matchphase.ActionFinalizeMatch, "/matches/9/finalize", false},
		{matchphase.ActionSuspendMatch, "/matches/9/suspend", false},
	}
	for _, tt := range tests {
		result, err := client.Transition(context.Background(), 9, tt.action)
		if err != nil {
			t.Fatalf("%s: %v", tt.action, err)
		}
		if gotPath != tt.path {
			t.Fatalf("%s: expected path %s, got %s", tt.action, tt.path, gotPath)
		}
		if tt.clock != (result.StartedAt != nil) {
			t.Fatalf("%s: unexpected start time %v", tt.action, result.StartedAt)
		}
	}
}

func TestTransitionErrorCarriesBackendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message": "El partido ya fue iniciado"}`))
	})

	_, err := client.Transition(context.Background(), 3, matchphase.ActionStartMatch)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.PublicMessage() != "El partido ya fue iniciado" {
		t.Fatalf("unexpected error %+v", apiErr)
	}

	var pm matchphase.PublicMessage
	if !errors.As(err, &pm) {
		t.Fatalf("APIError should expose a public message")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: `{"message":"boom"}`, want: "boom"},
		{body: `{"error":"bad phase"}`, want: "bad phase"},
		{body: `{"detail":"nothing useful"}`, want: ""},
		{body: `<html>gateway</html>`, want: ""},
		{body: "upstream timeout", want: "upstream timeout"},
		{body: "", want: ""},
	}
	for _, tt := range tests {
		if got := errorMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("errorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
