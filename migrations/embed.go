// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

//go:embed schemas/*.sql
var FS embed.FS

// Dir is the directory inside FS holding the migrations.
const Dir = "schemas"
