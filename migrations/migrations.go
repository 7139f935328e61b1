// Package migrations embeds the SQL schema so the binary can migrate from any
// working directory.
package migrations

import "embed"

// FS holds every *.sql migration file.
//
//go:embed *.sql
var FS embed.FS
