package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    string
	}{
		{
			name:    "header",
			prepare: func(r *http.Request) { r.Header.Set(AccessCodeHeader, "team-a") },
			want:    "team-a",
		},
		{
			name: "header wins over cookie and query",
			prepare: func(r *http.Request) {
				r.Header.Set(AccessCodeHeader, "from-header")
				r.AddCookie(&http.Cookie{Name: AccessCodeCookie, Value: "from-cookie"})
				r.URL.RawQuery = "code=from-query"
			},
			want: "from-header",
		},
		{
			name: "cookie wins over query",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: AccessCodeCookie, Value: "from-cookie"})
				r.URL.RawQuery = "code=from-query"
			},
			want: "from-cookie",
		},
		{
			name:    "query",
			prepare: func(r *http.Request) { r.URL.RawQuery = "code=qa" },
			want:    "qa",
		},
		{
			name:    "unsafe characters are replaced",
			prepare: func(r *http.Request) { r.Header.Set(AccessCodeHeader, "../etc/passwd") },
			want:    "___etc_passwd",
		},
		{
			name:    "no code falls back to default room",
			prepare: func(*http.Request) {},
			want:    "lobby",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := RoomMiddleware("lobby")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				key, ok := RoomFromContext(r.Context())
				require.True(t, ok)
				got = key
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/counter", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRoomMiddleware_NoDefault(t *testing.T) {
	handler := RoomMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
