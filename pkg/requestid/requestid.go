package requestid

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

// Header carries the correlation id on HTTP requests and NATS messages.
const Header = "X-Request-ID"

const maxIDLength = 128

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type contextKey struct{}

// WithContext stores id in ctx.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Resolve returns candidate when it is a well-formed id and a fresh UUID
// otherwise. Callers pass whatever the upstream sent.
func Resolve(candidate string) string {
	if candidate != "" && len(candidate) <= maxIDLength && validID.MatchString(candidate) {
		return candidate
	}
	return uuid.NewString()
}
