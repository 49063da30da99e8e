// Package static provides access to static assets and Go templates for UI rendering.
package static

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templatesFS embed.FS

func NewTemplatesFS(readFromDisk bool) fs.FS {
	return newFS(templatesFS, "templates", readFromDisk)
}

//go:embed styles
var stylesFS embed.FS

func NewStylesFS(readFromDisk bool) fs.FS {
	return newFS(stylesFS, "styles", readFromDisk)
}
