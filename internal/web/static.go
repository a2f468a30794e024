package web

import (
	"embed"
	"io/fs"
)

// The control panel page, compiled into the binary.
//
//go:embed static/*
var staticFiles embed.FS

// panelFS returns the embedded files rooted at static/.
func panelFS() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// static/ is a literal embed pattern; Sub cannot fail on it.
		panic(err)
	}
	return sub
}
