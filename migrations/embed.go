// Package migrations holds the SQL schema of the rule set store.
package migrations

import "embed"

// FS contains every migration file, applied in lexical order
//
//go:embed *.sql
var FS embed.FS
