package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// TraceHeader is the correlation header accepted from clients and echoed on
// every response.
const TraceHeader = "X-Trace-Id"

// traceIDKey is the context key for the trace id value.
type traceIDKey struct{}

// TraceIDFromContext extracts the trace id from the context.
// It returns an empty string if no trace id is present.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// TraceID returns a middleware that ensures every request carries a
// correlation trace id. If the incoming request has a valid X-Trace-Id
// header, that value is reused; otherwise a new UUID v4 is generated.
// Incoming values must be at most 128 bytes of printable ASCII (0x20-0x7E).
//
// The trace id is:
//   - Echoed on the response X-Trace-Id header.
//   - Stored in the request context (retrieve with TraceIDFromContext).
func TraceID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(TraceHeader)
			if !isValidTraceID(id) {
				id = uuid.New().String()
			}

			w.Header().Set(TraceHeader, id)

			ctx := context.WithValue(r.Context(), traceIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isValidTraceID checks that id is non-empty, at most 128 bytes, and
// contains only printable ASCII (0x20-0x7E).
func isValidTraceID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
