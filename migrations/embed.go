// Package migrations embeds the schema migrations so the daemon ships as a
// single binary with no external migration files to deploy alongside it.
package migrations

import "embed"

// FS holds the embedded *.sql migration files, consumed by internal/store
// via golang-migrate's iofs source driver.
//
//go:embed *.sql
var FS embed.FS
