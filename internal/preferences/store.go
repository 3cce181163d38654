// Package preferences persists user preferences such as the selected mode.
package preferences

import (
	"context"
	"fmt"
)

// ModeKey is the single key under which the selected mode is stored.
const ModeKey = "mode"

// Store is a minimal key/value preference store.
//
// Values are stored verbatim: a Set followed by a Get returns the same raw
// string whether or not it is meaningful to the caller.
type Store interface {
	// Get returns the stored value. ok is false when the key was never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Close releases resources held by the store.
	Close() error
}

// Open returns the store for the given driver ("file" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "file":
		return NewFileStore(path), nil
	case "sqlite":
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown preferences driver %q", driver)
	}
}
