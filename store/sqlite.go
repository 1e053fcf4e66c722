package store

import (
	"database/sql"
	"errors"
	"fmt"

	// tell sql to use sqlite
	_ "modernc.org/sqlite"
)

// Sqlite stores settings in a SQLite table
type Sqlite struct {
	db *sql.DB
}

// NewSqlite opens or creates the SQLite file at dbFile
func NewSqlite(dbFile string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (key TEXT NOT NULL PRIMARY KEY,
				value BLOB)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Error creating settings table: %v", err)
	}

	return &Sqlite{db: db}, nil
}

// Load implements Settings
func (s *Sqlite) Load(key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// Save implements Settings
func (s *Sqlite) Save(key string, value []byte) error {
	_, err := s.db.Exec(`INSERT INTO settings(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Close implements Settings
func (s *Sqlite) Close() error {
	return s.db.Close()
}
