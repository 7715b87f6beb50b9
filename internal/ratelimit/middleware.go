package ratelimit

import (
	"encoding/json"
	"net/http"

	"github.com/ashita-ai/taskqueue/internal/model"
)

// KeyFunc extracts the rate limit key from a request.
// Returns empty string to skip rate limiting for this request.
type KeyFunc func(r *http.Request) string

// RequestIDFunc extracts the request ID from the request context.
// Injected by the caller to avoid a dependency on the server package.
type RequestIDFunc func(r *http.Request) string

// AgentKeyFunc keys requests by their agent_id query parameter.
// Requests without one are not limited; the handler rejects them anyway.
func AgentKeyFunc(r *http.Request) string {
	if agent := r.URL.Query().Get("agent_id"); agent != "" {
		return "agent:" + agent
	}
	return ""
}

// Middleware returns HTTP middleware that enforces limiter per key.
// A nil limiter disables limiting. Limiter errors fail open.
func Middleware(limiter Limiter, keyFunc KeyFunc, reqIDFunc RequestIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil || allowed {
				next.ServeHTTP(w, r)
				return
			}

			var requestID string
			if reqIDFunc != nil {
				requestID = reqIDFunc(r)
			}
			w.Header().Set("Retry-After", "1")
			writeRateLimitError(w, requestID)
		})
	}
}

// writeRateLimitError writes a rate-limit error using the standard failure envelope.
func writeRateLimitError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Status:       false,
		ErrorCode:    model.ErrCodeGeneral,
		ErrorMessage: "too many requests",
		RequestID:    requestID,
	})
}
