package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/iota-uz/schemagov/pkg/composables"
)

// WithPrincipal copies the username asserted by the upstream auth proxy into the context.
// Requests without the header pass through unauthenticated; handlers decide what to do.
func WithPrincipal(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := strings.TrimSpace(r.Header.Get(header))
			if username == "" {
				next.ServeHTTP(w, r)
				return
			}
			logger := composables.UseLogger(r.Context()).WithField("principal", username)
			ctx := composables.WithLogger(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(composables.WithUsername(ctx, username)))
		})
	}
}
