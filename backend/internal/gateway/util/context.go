package util

import (
	"context"
	"net/http"

	"student_records/backend/internal/shared"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores the authenticated caller in ctx
func WithPrincipal(ctx context.Context, p shared.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller stored by the auth middleware
func PrincipalFrom(r *http.Request) (shared.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(shared.Principal)
	return p, ok && p.UserID != ""
}
