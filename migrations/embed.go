// Package migrations embeds the SQL migration files applied on server startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
