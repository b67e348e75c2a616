package migrations

import "embed"

// FS exposes the migration sources to goose so migrations do not depend on
// the working directory of the process.
//
//go:embed *.go
var FS embed.FS
