package server

import (
	"embed"
)

//go:embed all:dist
var embedFS embed.FS

// getIndexHTML は埋め込みのindex.htmlを返す
func getIndexHTML() []byte {
	data, err := embedFS.ReadFile("dist/index.html")
	if err != nil {
		// ビルド時に埋め込まれるため到達しない
		panic(err)
	}
	return data
}
