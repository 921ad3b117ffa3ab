package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextUserKey   ctxKey = "userID"
	ContextTenantKey ctxKey = "tenantID"
)

func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if userID, ok := ctx.Value(ContextUserKey).(int64); ok {
		return userID
	}
	return 0
}

func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ContextUserKey, userID)
}

// TenantIDFromContext returns the tenant scope of the request, or 0 when the
// request carries no tenant context.
func TenantIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if tenantID, ok := ctx.Value(ContextTenantKey).(int64); ok {
		return tenantID
	}
	return 0
}

func ContextWithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, ContextTenantKey, tenantID)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
