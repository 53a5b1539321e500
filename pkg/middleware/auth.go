package middleware

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/pkg/logger"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	tokenKey  contextKeyType = "token"
)

// DefaultTokenCookie is the cookie the storefront login stores its JWT in.
const DefaultTokenCookie = "jwt_token"

// TokenCookie reads the bearer token from the named cookie and stores it in
// the request context. The token is not verified here; the product API is the
// authority on its validity. When it parses as a JWT, its subject is attached
// to the context as the user ID for logging. A missing cookie is not an error.
func TokenCookie(name string) func(http.Handler) http.Handler {
	parser := jwt.NewParser()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(name)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey, c.Value)
			if userID := unverifiedSubject(parser, c.Value); userID != "" {
				ctx = context.WithValue(ctx, userIDKey, userID)
				ctx = logger.WithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unverifiedSubject(parser *jwt.Parser, raw string) string {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return ""
	}
	for _, key := range []string{"user_id", "username", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// TokenFromContext returns the raw bearer token, or "" when the shopper has
// no token cookie.
func TokenFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tokenKey).(string); ok {
		return t
	}
	return ""
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
