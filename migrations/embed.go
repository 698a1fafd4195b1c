package migrations

import "embed"

// FS holds the SQL migrations applied by the delivery ledger.
//
//go:embed *.sql
var FS embed.FS
