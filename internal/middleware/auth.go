package middleware

import (
	"context"
	"net/http"

	"github.com/AdamBeresnev/duel-organizer/internal/httputil"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	users "github.com/AdamBeresnev/duel-organizer/internal/user"
	"github.com/google/uuid"
)

type ContextKey string

const UserIDKey ContextKey = "userID"

// UserIDHeader is set by the authenticating proxy in front of the service.
const UserIDHeader = "X-User-ID"

// RequireAuth rejects requests that do not carry the id of a known user.
func RequireAuth(userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userIDStr := r.Header.Get(UserIDHeader)
			if userIDStr == "" {
				httputil.Unauthorized(w, "missing "+UserIDHeader+" header")
				return
			}

			userID, err := uuid.Parse(userIDStr)
			if err != nil {
				httputil.Unauthorized(w, "malformed "+UserIDHeader+" header")
				return
			}

			user, err := userStore.GetUser(r.Context(), userID)
			if err != nil {
				if store.IsNotFound(err) {
					httputil.Unauthorized(w, "unknown user")
					return
				}
				httputil.InternalServerError(w, "Failed to load user", err)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, users.UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(UserIDKey)
	if val == nil {
		return uuid.Nil, false
	}

	id, ok := val.(uuid.UUID)
	return id, ok
}

func GetAuthenticatedUser(ctx context.Context) *users.User {
	val := ctx.Value(users.UserKey)
	if val == nil {
		return nil
	}
	user, ok := val.(*users.User)
	if !ok {
		return nil
	}
	return user
}
