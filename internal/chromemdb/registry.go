package chromemdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/philippgille/chromem-go"
)

// Open persistent databases, keyed by absolute directory. chromem reads the
// directory only when a database is opened, so every manager in the process
// has to go through the same handle to see the others' writes.
var (
	registryMu sync.Mutex
	registry   = map[string]*chromem.DB{}
)

func registryKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// openShared returns the database stored at path. Without create, a missing
// directory yields ErrCollectionNotFound and nothing is written.
func openShared(path string, compress, create bool) (*chromem.DB, error) {
	key := registryKey(path)

	registryMu.Lock()
	defer registryMu.Unlock()

	if db, ok := registry[key]; ok {
		return db, nil
	}
	if !create {
		if _, err := os.Stat(key); errors.Is(err, fs.ErrNotExist) {
			return nil, ErrCollectionNotFound
		}
	}
	db, err := chromem.NewPersistentDB(key, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	registry[key] = db
	return db, nil
}

// resetShared drops the open handle for path and removes the directory.
// A missing directory is not an error.
func resetShared(path string) error {
	key := registryKey(path)

	registryMu.Lock()
	defer registryMu.Unlock()

	if db, ok := registry[key]; ok {
		if err := db.Reset(); err != nil {
			return err
		}
		delete(registry, key)
	}
	return os.RemoveAll(key)
}
