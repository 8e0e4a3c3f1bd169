// Package all registers every built storage backend. Binaries that load via
// the factory blank-import this package.
package all

import (
	_ "dwetl/internal/storage/postgres"
	_ "dwetl/internal/storage/sqlite"
)
