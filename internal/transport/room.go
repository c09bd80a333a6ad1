package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/rpggio/tallyroom/internal/room"
)

// Access code sources, in precedence order.
const (
	AccessCodeHeader = "X-Access-Code"
	AccessCodeCookie = "accessCode"
	AccessCodeQuery  = "code"
)

type roomKey struct{}

// RoomFromContext returns the resolved room key from context, if present.
func RoomFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(roomKey{}).(string)
	return key, ok
}

// RoomMiddleware resolves the caller's access code to a room key. Requests
// without a code land in defaultCode's room.
func RoomMiddleware(defaultCode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := room.Resolve(accessCode(r))
			if key == "" {
				key = room.Resolve(defaultCode)
			}
			if key == "" {
				writeError(w, http.StatusBadRequest, "missing access code")
				return
			}

			ctx := context.WithValue(r.Context(), roomKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessCode(r *http.Request) string {
	if code := strings.TrimSpace(r.Header.Get(AccessCodeHeader)); code != "" {
		return code
	}
	if c, err := r.Cookie(AccessCodeCookie); err == nil {
		if code := strings.TrimSpace(c.Value); code != "" {
			return code
		}
	}
	return strings.TrimSpace(r.URL.Query().Get(AccessCodeQuery))
}
