package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextAdminKey ctxKey = "adminSubject"

// AdminFromContext returns the authenticated admin username, or "" when the
// request did not pass the admin middleware.
func AdminFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if subject, ok := ctx.Value(ContextAdminKey).(string); ok {
		return subject
	}
	return ""
}

func ContextWithAdmin(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextAdminKey, subject)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
