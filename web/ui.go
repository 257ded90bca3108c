package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// DisplayFS holds the station display page and its assets.
//
//go:embed display
var DisplayFS embed.FS

// Handler serves the embedded display. Unknown non-API paths fall back to
// index.html so the page can be bookmarked at any route.
func Handler() http.Handler {
	sub, err := fs.Sub(DisplayFS, "display")
	if err != nil {
		panic(err) // embedded directory always exists
	}
	files := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestPath := r.URL.Path

		if strings.HasPrefix(requestPath, "/api/") || requestPath == "/ws" {
			http.NotFound(w, r)
			return
		}

		if requestPath == "/" || requestPath == "" {
			serveIndexHTML(w, sub)
			return
		}

		filePath := strings.TrimPrefix(path.Clean(requestPath), "/")
		if info, err := fs.Stat(sub, filePath); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}

		serveIndexHTML(w, sub)
	})
}

func serveIndexHTML(w http.ResponseWriter, fsys fs.FS) {
	data, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
