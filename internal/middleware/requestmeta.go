package middleware

import (
	"net/http"

	"github.com/opsdesk/opsdesk/internal/domain/activity"
)

// RequestMeta is HTTP middleware that captures the client IP and
// User-Agent of the request and stores them in the context, so
// activity entries recorded downstream carry request attribution.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := &activity.RequestMeta{
			IPAddress: realIP(r),
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(activity.NewContextMeta(r.Context(), meta)))
	})
}
