// Package migrations holds the embedded schema of every backend and applies it.
package migrations

import "embed"

// schemaFS holds one directory of ordered .sql files per backend.
//
//go:embed postgres/*.sql clickhouse/*.sql sqlite/*.sql
var schemaFS embed.FS
