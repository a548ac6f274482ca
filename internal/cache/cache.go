// Package cache persists per-module compiled output between builds so an
// unchanged module is never recompiled. Storage is one SQLite database per
// build mode; the two modes never share entries.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/bundlekit/api"
)

// ErrMiss is returned by Lookup when no current entry exists for a module.
var ErrMiss = errors.New("cache miss")

// Store is a mode-scoped on-disk cache of compiled modules. A hit requires
// the module name, source path and source modification time to all match the
// stored entry; any write overwrites the prior entry for the same name.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	mode api.Mode
	dir  string
}

// Open opens (creating if needed) the cache for one build mode under root.
// Production wipes its directory first: production builds must be fully
// reproducible and must not inherit accumulated development state. A wipe or
// create failure is fatal for the build.
func Open(root string, mode api.Mode) (*Store, error) {
	dir := filepath.Join(root, mode.String())
	if mode == api.Production {
		if err := os.RemoveAll(dir); err != nil {
			return nil, api.NewBuildError(api.KindCache, fmt.Sprintf("clear production cache %s", dir), err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, api.NewBuildError(api.KindCache, fmt.Sprintf("create cache directory %s", dir), err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "modules.db"))
	if err != nil {
		return nil, api.NewBuildError(api.KindCache, "open cache database", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, api.NewBuildError(api.KindCache, "tune cache database", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS modules (
		name        TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		mtime_ns    INTEGER NOT NULL,
		generated   BLOB NOT NULL,
		foreign_code BLOB
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, api.NewBuildError(api.KindCache, "create cache schema", err)
	}

	return &Store{db: db, mode: mode, dir: dir}, nil
}

// Dir returns the mode-scoped cache directory.
func (s *Store) Dir() string { return s.dir }

// Lookup returns the cached module for name if it was compiled from the same
// source path at the same modification time. Anything else is ErrMiss.
func (s *Store) Lookup(name api.ModuleName, sourcePath string, modTime time.Time) (api.CompiledModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT source_path, mtime_ns, generated, foreign_code FROM modules WHERE name = ?`, name)

	var (
		storedPath  string
		storedMtime int64
		generated   []byte
		foreign     []byte
	)
	switch err := row.Scan(&storedPath, &storedMtime, &generated, &foreign); {
	case errors.Is(err, sql.ErrNoRows):
		return api.CompiledModule{}, ErrMiss
	case err != nil:
		return api.CompiledModule{}, api.NewBuildError(api.KindCache, fmt.Sprintf("read cache entry %s", name), err)
	}

	if storedPath != sourcePath || storedMtime != modTime.UnixNano() {
		return api.CompiledModule{}, ErrMiss
	}
	return api.CompiledModule{
		Name:       name,
		SourcePath: storedPath,
		Generated:  generated,
		Foreign:    foreign,
	}, nil
}

// Put stores a freshly compiled module, replacing any prior entry for the
// same name. Writes are serialized so concurrent compilation cannot lose an
// update. A module with no source path (compiler-injected support code) is
// stored with a zero modification time and retrieved via Injected, not
// Lookup.
func (s *Store) Put(m api.CompiledModule, modTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mtime int64
	if !modTime.IsZero() {
		mtime = modTime.UnixNano()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO modules (name, source_path, mtime_ns, generated, foreign_code)
		 VALUES (?, ?, ?, ?, ?)`,
		m.Name, m.SourcePath, mtime, m.Generated, m.Foreign)
	if err != nil {
		return api.NewBuildError(api.KindCache, fmt.Sprintf("store cache entry %s", m.Name), err)
	}
	return nil
}

// Injected returns every stored module that has no source path, in name
// order. These are the support modules the compiler emitted alongside the
// last real compile.
func (s *Store) Injected() ([]api.CompiledModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT name, generated, foreign_code FROM modules WHERE source_path = '' ORDER BY name`)
	if err != nil {
		return nil, api.NewBuildError(api.KindCache, "read injected modules", err)
	}
	defer func() { _ = rows.Close() }()

	var mods []api.CompiledModule
	for rows.Next() {
		var m api.CompiledModule
		if err := rows.Scan(&m.Name, &m.Generated, &m.Foreign); err != nil {
			return nil, api.NewBuildError(api.KindCache, "read injected modules", err)
		}
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, api.NewBuildError(api.KindCache, "read injected modules", err)
	}
	return mods, nil
}

// DropInjected removes every stored module that has no source path.
func (s *Store) DropInjected() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM modules WHERE source_path = ''`); err != nil {
		return api.NewBuildError(api.KindCache, "drop injected modules", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
