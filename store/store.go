package store

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrNotFound is returned by Load when a key was never saved
var ErrNotFound = errors.New("not found")

// Settings is a key/value store for settings records
type Settings interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
	Close() error
}

// Type selects the settings backend
type Type string

// settings backends
const (
	TypeMemory Type = "memory"
	TypeBolt   Type = "bolt"
	TypeSqlite Type = "sqlite"
)

// Open returns a settings store of the given type. Files are created in
// dataDir.
func Open(t Type, dataDir string) (Settings, error) {
	switch t {
	case TypeMemory:
		return NewMemory(), nil
	case TypeBolt, "":
		return NewBolt(filepath.Join(dataDir, "settings.db"))
	case TypeSqlite:
		return NewSqlite(filepath.Join(dataDir, "settings.sqlite"))
	default:
		return nil, fmt.Errorf("unknown settings store type: %v", t)
	}
}
