// Package web embeds the static assets served under /static/.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var files embed.FS

// Static is the asset tree rooted at the static directory.
var Static fs.FS = mustSub(files, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Handler serves Static; mount it with http.StripPrefix("/static", ...).
func Handler() http.Handler {
	return http.FileServer(http.FS(Static))
}
