package migrations

import "embed"

// Migrations holds the goose SQL migrations of the Postgres store
//
//go:embed *.sql
var Migrations embed.FS
