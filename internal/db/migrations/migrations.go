package migrations

import "embed"

// FS holds the SQL migrations, embedded so the daemons can migrate on start
// without shipping files alongside the binary.
//
//go:embed *.sql
var FS embed.FS
