package kv

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open returns the Store for driver. path is ignored by the memory driver.
func Open(ctx context.Context, driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		return OpenSQLite(ctx, path, SQLiteOptions{})
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("kv: unsupported driver %q", driver)
	}
}
