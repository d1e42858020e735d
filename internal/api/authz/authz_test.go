package authz

import (
	"context"
	"errors"
	"testing"
)

func TestRequireOperatorUnauthenticated(t *testing.T) {
	err := RequireOperator(context.Background(), "liga-norte")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRequireOperatorEmptyIDUnauthenticated(t *testing.T) {
	ctx := ContextWithOperator(context.Background(), &Operator{})

	err := RequireOperator(ctx, "")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRequireOperatorOtherTenantForbidden(t *testing.T) {
	ctx := ContextWithOperator(context.Background(), &Operator{
		ID:               "user_123",
		OrganizationSlug: "liga-sur",
	})

	err := RequireOperator(ctx, "liga-norte")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRequireOperatorAllowed(t *testing.T) {
	tests := []struct {
		name     string
		operator *Operator
		tenant   string
	}{
		{name: "same tenant", operator: &Operator{ID: "user_123", OrganizationSlug: "liga-norte"}, tenant: "liga-norte"},
		{name: "no organization", operator: &Operator{ID: "user_123"}, tenant: "liga-norte"},
		{name: "single tenant", operator: &Operator{ID: "user_123", OrganizationSlug: "liga-sur"}, tenant: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := ContextWithOperator(context.Background(), tc.operator)
			if err := RequireOperator(ctx, tc.tenant); err != nil {
				t.Fatalf("expected nil, got %v", err)
			}
		})
	}
}

func TestOperatorFromContextNil(t *testing.T) {
	if got := OperatorFromContext(nil); got != nil {
		t.Fatalf("expected nil operator, got %+v", got)
	}
}
