// Package trace assigns every request an id, propagated through the
// context and echoed in the X-Request-ID response header.
package trace

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// HeaderRequestID carries the id on requests and responses.
const HeaderRequestID = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// Incoming ids are reused only when they look sane.
var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Middleware reuses a well-formed incoming X-Request-ID or generates one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if !validID.MatchString(id) {
			id = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// GenerateRequestID returns a new random request id.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the id stored by Middleware, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// FromRequest is GetRequestID for an *http.Request.
func FromRequest(r *http.Request) string {
	return GetRequestID(r.Context())
}
