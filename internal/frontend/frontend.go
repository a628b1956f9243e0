// Package frontend serves the trafficwatch dashboard, either compiled into
// the binary (-tags embed) or from a directory on disk.
package frontend

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
)

// Dir serves the dashboard from dir. The directory must exist.
func Dir(dir string) (http.Handler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frontend: %s is not a directory", dir)
	}
	return serve(os.DirFS(dir)), nil
}

// serve disables caching so a redeployed dashboard is picked up on reload.
func serve(fsys fs.FS) http.Handler {
	files := http.FileServer(http.FS(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}
