package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/benestar-app/benestar/internal/api"
)

type contextKey string

const UserClaimsKey contextKey = "user_claims"

func Middleware(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := jwtMgr.ValidateAccessToken(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserClaims(ctx context.Context) *AccessClaims {
	claims, _ := ctx.Value(UserClaimsKey).(*AccessClaims)
	return claims
}

// GetUserID returns the authenticated user id, or "" outside the middleware.
func GetUserID(ctx context.Context) string {
	if claims := GetUserClaims(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}

// WithUserID returns a context carrying claims for userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserClaimsKey, &AccessClaims{UserID: userID})
}
