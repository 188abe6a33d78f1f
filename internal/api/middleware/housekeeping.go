package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Sweeper is the retention sweep the request pipeline triggers.
type Sweeper interface {
	MaybeRun(ctx context.Context) bool
}

// Housekeeping runs the retention sweep before page and API requests, at most once per the
// sweeper's interval. The sweep is detached from request cancellation so a client hanging up
// does not abort a half-done purge; its failures never reach the response.
func Housekeeping(sweeper Sweeper) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if sweeper == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isProbePath(r.URL.Path) && !isStaticPath(r.URL.Path) {
				sweeper.MaybeRun(context.WithoutCancel(r.Context()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isStaticPath(path string) bool {
	return strings.HasPrefix(path, "/static/")
}
