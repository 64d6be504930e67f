package usercontext

import (
	"context"
	"strings"
)

// UserContextKey is the request context key for the authenticated user ID.
type UserContextKey struct{}

// RoleContextKey is the request context key for the authenticated user's role.
type RoleContextKey struct{}

// WithUserID stores the user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserContextKey{}, strings.TrimSpace(userID))
}

// UserIDFromContext returns the user ID from context, if set.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(UserContextKey{}).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleContextKey{}, strings.ToLower(strings.TrimSpace(role)))
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(RoleContextKey{}).(string)
	return value
}
