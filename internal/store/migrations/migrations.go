// Package migrations embeds the forward-only SQL migration set applied by
// internal/store/pg at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
