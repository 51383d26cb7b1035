// Package migrations embeds the SQL schema migrations so the server and CLI
// can apply them without the source tree on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
