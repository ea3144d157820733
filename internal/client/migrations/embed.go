// Package migrations embeds the client-side SQLite schema migrations
// applied with goose when the local database is opened.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
