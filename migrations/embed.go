// Package migrations embeds the SQL schema into the binary.
//
// Import it for its side effect; init registers the files with the
// database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

//go:embed *.sql
var schema embed.FS

func init() {
	database.RegisterMigrations(schema)
}
