package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Authenticator attaches an AuthContext to requests carrying a valid bearer token
// or a logged-in session. Anonymous requests pass through without one; requests
// with an invalid bearer token are rejected.
func Authenticator(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
				principal, err := service.PrincipalForToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
				if err != nil {
					httpx.Problem(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), "invalid access token")
					return
				}
				next.ServeHTTP(w, r.WithContext(shared.ContextWithAuth(ctx, principal)))
				return
			}
			if sess := shared.SessionFromContext(ctx); sess != nil {
				if raw := strings.TrimSpace(sess.User()); raw != "" {
					userID, err := strconv.ParseInt(raw, 10, 64)
					if err != nil {
						if logger != nil {
							logger.Error("auth parse session user", slog.String("value", raw))
						}
						next.ServeHTTP(w, r)
						return
					}
					principal, err := service.PrincipalForUser(ctx, userID)
					if err != nil {
						// Keep the identity so guards answer 403 rather than 401.
						if logger != nil {
							logger.Warn("auth resolve session principal", slog.Int64("user_id", userID), slog.Any("error", err))
						}
						principal = &shared.AuthContext{UserID: userID, Method: MethodSession}
					}
					next.ServeHTTP(w, r.WithContext(shared.ContextWithAuth(ctx, principal)))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
