package docstore

import (
	"fmt"
	"path/filepath"
)

// Supported backends.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Open opens the named backend with its database file inside dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendBolt, "":
		return NewBoltStore(filepath.Join(dir, "douit.db"))
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "douit.sqlite"))
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %s or %s)", backend, BackendBolt, BackendSQLite)
	}
}
