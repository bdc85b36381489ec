package middleware

import (
	"context"
	"net/http"
	"strings"

	"otportal/models"
	"otportal/session"
)

type contextKey string

const UserContextKey contextKey = "user"
const TokenContextKey contextKey = "token"

// Auth resolves the bearer token through the session cache and stores the
// user on the request context. Rejections are written through onError so the
// caller controls the error payload shape.
func Auth(sessions *session.Service, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				onError(w, r, session.ErrUnauthorized)
				return
			}

			user, err := sessions.Authenticate(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			ctx = context.WithValue(ctx, TokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// RequireRole gates a subtree to the given roles.
func RequireRole(onError func(w http.ResponseWriter, r *http.Request, err error), roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				onError(w, r, session.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			onError(w, r, session.ErrPermissionDenied)
		})
	}
}

func GetUserFromContext(ctx context.Context) *models.ExternalUser {
	user, ok := ctx.Value(UserContextKey).(*models.ExternalUser)
	if !ok {
		return nil
	}
	return user
}

func GetTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}
