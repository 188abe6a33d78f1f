// Package web holds the embedded page templates and static assets.
package web

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"net/http"
	"strings"
	"time"
)

//go:embed templates static robots.txt
var files embed.FS

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic("web: " + dir + " missing from embed: " + err.Error())
	}
	return sub
}

// Templates returns the page templates rooted at the templates directory.
func Templates() fs.FS {
	return mustSub("templates")
}

// readOnly answers 405 to anything but GET and HEAD.
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StaticHandler serves /static/ from the embedded assets. Directories are not listed.
func StaticHandler() http.Handler {
	assets := http.FileServerFS(mustSub("static"))
	return readOnly(http.StripPrefix("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		assets.ServeHTTP(w, r)
	})))
}

// RobotsTxtHandler serves robots.txt with a content ETag so crawlers can revalidate.
func RobotsTxtHandler() http.Handler {
	robots, err := files.ReadFile("robots.txt")
	if err != nil {
		panic("web: robots.txt missing from embed: " + err.Error())
	}
	sum := sha256.Sum256(robots)
	etag := `"` + hex.EncodeToString(sum[:8]) + `"`

	return readOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("ETag", etag)
		http.ServeContent(w, r, "robots.txt", time.Time{}, bytes.NewReader(robots))
	}))
}
