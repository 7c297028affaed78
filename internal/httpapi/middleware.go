package httpapi

import (
	"crypto/subtle"
	"net/http"
)

const roomKeyHeader = "X-Room-Key"

// RequireRoomKey guards routes with the shared room key, taken from the X-Room-Key header or
// the key query parameter. An empty key leaves the routes open.
func RequireRoomKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(roomKeyHeader)
			if got == "" {
				got = r.URL.Query().Get("key")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, "bad room key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
