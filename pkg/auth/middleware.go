package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Middleware guards handlers with bearer tokens.
type Middleware struct {
	jwt *JWTManager
}

// NewMiddleware returns middleware validating tokens with jm.
func NewMiddleware(jm *JWTManager) *Middleware {
	return &Middleware{jwt: jm}
}

// Authenticate validates the bearer token and stores its claims in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.jwt.ValidateToken(r.Context(), parts[1])
		if err != nil {
			unauthorized(w, "invalid or expired token: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose claims lack every listed role.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				unauthorized(w, "no authentication context")
				return
			}
			for _, role := range roles {
				if claims.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			jsonError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	jsonError(w, http.StatusUnauthorized, "unauthorized", message)
}

func jsonError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     errorType,
		"message":   message,
		"timestamp": time.Now().Unix(),
	})
}

type contextKey string

const claimsContextKey contextKey = "claims"

// ClaimsFromContext extracts claims from request context
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
