// Package appfs exposes the assets compiled into the binary: database
// migrations and email templates.
package appfs

import "embed"

//go:embed migrations all:assets
var FS embed.FS
