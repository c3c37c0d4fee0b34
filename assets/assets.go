// Package assets holds the page template and stylesheet used when the
// resource root does not provide its own.
package assets

import "embed"

const (
	TemplateName   = "default-markdown-assets-template.html"
	StylesheetName = "default-markdown-assets.css"
)

//go:embed default-markdown-assets-template.html default-markdown-assets.css
var FS embed.FS
