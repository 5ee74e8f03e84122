// internal/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/Jackzmc/flashforge-api-server/internal/api"
	"github.com/Jackzmc/flashforge-api-server/internal/service"
)

// PasswordHeader carries the shared password
const PasswordHeader = "X-Password"

// Auth middleware for authenticating requests. Safe methods need read access,
// everything else write access.
func Auth(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access := service.AccessWrite
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				access = service.AccessRead
			}

			if !authService.Required(access) {
				next.ServeHTTP(w, r)
				return
			}

			if err := authService.Authorize(access, r.Header.Get(PasswordHeader), bearerToken(r)); err != nil {
				api.Unauthorized(w, "valid password or token required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// img tags or WebSockets, so GET requests may also pass ?token=.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("token")
	}
	return ""
}
