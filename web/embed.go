// Package web embeds the single-page frontend so the binary is self-contained.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

//go:embed static/index.html
var indexHTML []byte

// Index returns the frontend entry page.
func Index() []byte { return indexHTML }

// Static returns the embedded asset tree rooted at static/.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
