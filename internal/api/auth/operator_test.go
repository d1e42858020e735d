package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codr1/leaguedesk/internal/api/authz"
)

func serveGuarded(t *testing.T, ctx context.Context, required bool, tenant string) (*httptest.ResponseRecorder, *authz.Operator) {
	t.Helper()
	var seen *authz.Operator
	handler := RequireOperator(required, tenant)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = authz.OperatorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/matches/1/transitions", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireOperatorRejectsMissingSession(t *testing.T) {
	rec, _ := serveGuarded(t, context.Background(), true, "liga-norte")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireOperatorRejectsOtherTenant(t *testing.T) {
	ctx := authz.ContextWithOperator(context.Background(), &authz.Operator{ID: "user_1", OrganizationSlug: "liga-sur"})
	rec, _ := serveGuarded(t, ctx, true, "liga-norte")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireOperatorAllowsSession(t *testing.T) {
	ctx := authz.ContextWithOperator(context.Background(), &authz.Operator{ID: "user_1", OrganizationSlug: "liga-norte"})
	rec, seen := serveGuarded(t, ctx, true, "liga-norte")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen == nil || seen.ID != "user_1" {
		t.Fatalf("expected operator user_1, got %+v", seen)
	}
}

func TestRequireOperatorAnonymousWhenNotRequired(t *testing.T) {
	rec, seen := serveGuarded(t, context.Background(), false, "liga-norte")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen == nil || !seen.Anonymous || seen.ID != anonymousOperatorID {
		t.Fatalf("expected anonymous operator, got %+v", seen)
	}
}
