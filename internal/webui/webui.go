// Package webui embeds the page templates and static assets.
package webui

import "embed"

//go:embed templates static
var FS embed.FS
