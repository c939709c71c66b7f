package middleware

import (
	"fmt"
	"net/http"
	"time"
)

const noStore = "no-store, no-cache, must-revalidate, max-age=0"

// CachePolicy lets GET responses for which public reports true be shared for
// maxAge. Everything else is no-store: session routes such as /img/0/l serve
// a different image for every challenge under the same URL.
func CachePolicy(maxAge time.Duration, public func(*http.Request) bool) func(http.Handler) http.Handler {
	shared := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if maxAge > 0 && r.Method == http.MethodGet && public != nil && public(r) {
				h.Set("Cache-Control", shared)
			} else {
				h.Set("Cache-Control", noStore)
				h.Set("Pragma", "no-cache")
				h.Set("Expires", "0")
			}
			next.ServeHTTP(w, r)
		})
	}
}
