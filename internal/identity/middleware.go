package identity

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/docsmith-platform/docsmith/internal/api"
	"github.com/docsmith-platform/docsmith/internal/config"
)

type contextKey string

const identityKey contextKey = "identity"

// Resolver turns an incoming request into an Identity. A valid bearer token
// yields a user identity; anything else falls back to an anonymous identity
// keyed by client IP. Requests with a malformed or expired token are rejected
// rather than silently downgraded to anonymous.
type Resolver struct {
	validator *TokenValidator
	tiers     config.TiersConfig
}

func NewResolver(validator *TokenValidator, tiers config.TiersConfig) *Resolver {
	return &Resolver{validator: validator, tiers: tiers}
}

// Middleware resolves the caller's identity and stores it in the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			id := Anonymous(ClientIP(r), "anonymous")
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}

		claims, err := res.validator.Validate(parts[1])
		if err != nil {
			api.HandleError(w, api.ErrInvalidToken)
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			api.HandleError(w, api.ErrInvalidToken)
			return
		}

		tier := claims.Tier
		if tier == "" {
			tier = res.tiers.DefaultUser
		}

		id := User(userID, tier)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireUser rejects anonymous callers. Placed after Middleware on routes
// that only make sense for authenticated users.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok || id.IsAnonymous() {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity resolved by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// ClientIP extracts the caller's address, preferring reverse-proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return strings.TrimSpace(xff[:i])
			}
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
