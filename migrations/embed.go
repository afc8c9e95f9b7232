// Package migrations bundles the SQL schema into the server binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
