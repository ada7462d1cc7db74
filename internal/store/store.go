// Package store persists user preferences and learned debounce state as
// opaque key/value pairs.
//
// Three backends implement [Store]: [Memory] for tests and ephemeral runs,
// [SQLite] for single-node deployments, and [Postgres] for shared
// deployments. [Prefs] layers typed JSON access on top of any Store, and
// [Writer] moves writes off the caller's goroutine.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by [Store.Get] when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store is a minimal key/value persistence backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Drivers accepted by [Open].
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open creates the Store for driver using dsn. For sqlite the dsn is a file
// path; for postgres it is a connection string. Postgres stores are migrated
// before they are returned.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
