//go:build embed

package frontend

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var bundle embed.FS

// Handler serves the dashboard compiled into the binary.
func Handler() http.Handler {
	assets, err := fs.Sub(bundle, "static")
	if err != nil {
		panic(err)
	}
	return serve(assets)
}
