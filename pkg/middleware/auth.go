package middleware

import (
	"context"
	"net/http"
	"strings"

	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/response"
)

type contextKey string

const (
	UserContextKey  contextKey = "user"
	ActorContextKey contextKey = "actor"

	VerificationHeader = "X-Verification-Token"
)

// AuthMiddleware rejects requests without a valid session token.
func AuthMiddleware(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Missing Authorization header", "")
				return
			}

			claims, ok := parseBearer(w, tokens, authHeader)
			if !ok {
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			ctx = context.WithValue(ctx, ActorContextKey, claims.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth lets anonymous requests through. A session token, or failing that a
// verification token, upgrades the actor. A token that is present but invalid is rejected.
func OptionalAuth(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := report.Anonymous()

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				claims, ok := parseBearer(w, tokens, authHeader)
				if !ok {
					return
				}
				ctx = context.WithValue(ctx, UserContextKey, claims)
				actor = claims.Actor()
			} else if v := strings.TrimSpace(r.Header.Get(VerificationHeader)); v != "" {
				claims, err := tokens.ParseVerification(v)
				if err != nil {
					response.Error(w, http.StatusUnauthorized, "Invalid or expired verification token", err.Error())
					return
				}
				actor = claims.Actor()
			}

			ctx = context.WithValue(ctx, ActorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBearer(w http.ResponseWriter, tokens *auth.TokenManager, authHeader string) (*auth.Claims, bool) {
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		response.Error(w, http.StatusUnauthorized, "Invalid token format", "Format must be Bearer <token>")
		return nil, false
	}

	claims, err := tokens.Parse(tokenString)
	if err != nil {
		response.Error(w, http.StatusUnauthorized, "Invalid or expired token", err.Error())
		return nil, false
	}
	return claims, true
}

// ActorFromContext returns the actor resolved by the auth middleware, anonymous if none ran.
func ActorFromContext(ctx context.Context) report.Actor {
	if a, ok := ctx.Value(ActorContextKey).(report.Actor); ok {
		return a
	}
	return report.Anonymous()
}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(UserContextKey).(*auth.Claims)
	return c, ok
}
