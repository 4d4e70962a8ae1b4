package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gram-swasthya/platform/internal/shared/config"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Claims extends JWT claims with the actor's role and hierarchy anchors.
type Claims struct {
	jwt.RegisteredClaims
	Role       string   `json:"role"`
	DistrictID string   `json:"district_id,omitempty"`
	BlockID    string   `json:"block_id,omitempty"`
	VillageIDs []string `json:"village_ids,omitempty"`
}

// Middleware creates JWT authentication middleware that places the actor in
// the request context. Requests without a valid bearer token get 401.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			actor := &Actor{
				ID:         types.ID(claims.Subject),
				Role:       Role(claims.Role),
				DistrictID: types.ID(claims.DistrictID),
				BlockID:    types.ID(claims.BlockID),
			}
			for _, v := range claims.VillageIDs {
				actor.VillageIDs = append(actor.VillageIDs, types.ID(v))
			}

			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor extracts the actor from the request context. Returns nil when the
// request is unauthenticated.
func GetActor(ctx context.Context) *Actor {
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a context carrying the given actor. Used by tests and
// internal callers.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
