// Package migrations embeds the call history schema for goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
