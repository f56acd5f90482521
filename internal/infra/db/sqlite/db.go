// Package sqlite is the default analysis job store, backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Register the modernc sqlite driver under the name "sqlite"
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// NewDB opens (or creates) a SQLite database at path with WAL journaling,
// foreign keys and a busy timeout. Use ":memory:" in tests.
func NewDB(path string) (*sql.DB, error) {
	if path != memoryPath {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("sqlite.NewDB: parent directory %q does not exist", dir)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.NewDB: open %q: %w", path, err)
	}

	if path == memoryPath {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.NewDB: ping %q: %w", path, err)
	}
	return db, nil
}
