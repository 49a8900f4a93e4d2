package sqlstore

import "embed"

// MigrationsFS embeds the goose migration set so the tx_log schema travels
// with the compiled binary instead of a separate deploy artifact.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
