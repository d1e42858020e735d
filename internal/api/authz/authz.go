package authz

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Operator is the person driving a match from the control screen.
type Operator struct {
	// ID is the Clerk user ID, or "anonymous" when auth is not required.
	ID        string
	SessionID string
	// OrganizationSlug is the Clerk organization the session is active in.
	// It must match the tenant slug when both are set.
	OrganizationSlug string
	Role             string
	Anonymous        bool
}

type operatorContextKey struct{}

func ContextWithOperator(ctx context.Context, operator *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, operator)
}

// OperatorFromContext retrieves the Operator stored in ctx.
// It returns nil if ctx is nil, if no operator is stored, or if the stored value has a different type.
func OperatorFromContext(ctx context.Context) *Operator {
	if ctx == nil {
		return nil
	}

	operator, ok := ctx.Value(operatorContextKey{}).(*Operator)
	if !ok {
		return nil
	}

	return operator
}

// RequireOperator checks that ctx carries an operator allowed to act for
// tenant. An empty tenant means a single-tenant deployment.
func RequireOperator(ctx context.Context, tenant string) error {
	operator := OperatorFromContext(ctx)
	if operator == nil || operator.ID == "" {
		return ErrUnauthenticated
	}

	if tenant != "" && operator.OrganizationSlug != "" && operator.OrganizationSlug != tenant {
		return ErrForbidden
	}

	return nil
}
