package auth

import (
	"context"
	"moonshop/domain/chat"
	"moonshop/errors"
	"net/http"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// ErrorWriter renders an error response, the HTTP layer provides it.
type ErrorWriter func(w http.ResponseWriter, err error)

// Middleware checks the Bearer token of every request and stores the
// authenticated user id in the request context. When disabled it lets
// everything through untouched.
func Middleware(tokens *TokenManager, enabled bool, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				writeError(w, errors.ErrUnauthenticated)
				return
			}
			userID, err := tokens.Verify(tokenString)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID chat.UserID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (chat.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(chat.UserID)
	return userID, ok
}

// EnsureSameUser rejects requests acting on another user's data.
// Requests without an authenticated user (auth disabled) are allowed.
func EnsureSameUser(ctx context.Context, userID chat.UserID) error {
	authenticated, ok := UserIDFromContext(ctx)
	if !ok {
		return nil
	}
	if authenticated != userID {
		return errors.ErrForbidden
	}
	return nil
}
