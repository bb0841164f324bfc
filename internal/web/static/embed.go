// Package static embeds the kiosk dashboard.
package static

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
)

//go:embed all:dist/*
var distFS embed.FS

// Dist returns the embedded dist directory as its own root.
func Dist() fs.FS {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic(err)
	}
	return fsys
}

// Handler serves the dashboard. Paths that do not name an embedded file fall back
// to index.html.
func Handler() http.Handler {
	fsys := Dist()
	files := http.FileServerFS(fsys)
	index, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		panic(err)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(r.URL.Path)
		if name != "/" {
			if st, err := fs.Stat(fsys, name[1:]); err == nil && !st.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(index)
	})
}
