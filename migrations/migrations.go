// Package migrations embeds the SQL schema so cmd/migrate works from any
// directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
