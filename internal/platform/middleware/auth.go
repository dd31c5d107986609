package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"crosswalk/pkg/requestcontext"
)

// RequireAdminToken guards operator endpoints. The configured value is a
// bcrypt hash so the plaintext token never lives in process config; an
// empty hash closes the routes entirely.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				http.Error(w, "admin routes disabled", http.StatusForbidden)
				return
			}
			token := r.Header.Get("X-Admin-Token")
			if token == "" {
				http.Error(w, "admin token required", http.StatusForbidden)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				logger.WarnContext(r.Context(), "admin token rejected", "path", r.URL.Path)
				http.Error(w, "invalid admin token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithActor extracts the operator identity from a Bearer token and puts
// it in the request context for audit trails. Identity here is
// attribution, not authorization: requests without a token proceed with
// an empty actor, and admin-token enforcement stays separate.
func WithActor(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if signingKey == "" || !strings.HasPrefix(auth, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			raw := strings.TrimPrefix(auth, "Bearer ")
			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(signingKey), nil
			})
			if err != nil || !token.Valid {
				logger.DebugContext(r.Context(), "operator token not usable for attribution", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if actor := claims.Subject; actor != "" {
				r = r.WithContext(requestcontext.WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}
