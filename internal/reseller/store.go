package reseller

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Reseller is a known secondary-location candidate. The list is read-only
// for scheduling; Import is the only writer.
type Reseller struct {
	ID      int
	Name    string
	Address string
	Notes   string
}

type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the reseller database at path. An empty
// path defaults to the config directory.
func Open(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}
		dir := filepath.Join(home, ".config", "slotplanner")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(dir, "resellers.db")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS resellers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// List returns every reseller ordered by name.
func (s *Store) List(ctx context.Context) ([]Reseller, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, address, notes FROM resellers ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("querying resellers: %w", err)
	}
	defer rows.Close()

	var resellers []Reseller
	for rows.Next() {
		var r Reseller
		if err := rows.Scan(&r.ID, &r.Name, &r.Address, &r.Notes); err != nil {
			return nil, fmt.Errorf("scanning reseller: %w", err)
		}
		resellers = append(resellers, r)
	}
	return resellers, rows.Err()
}

// ImportJSON replaces the reseller list with the JSON array read from r:
// [{"name": ..., "address": ..., "notes": ...}, ...]
func (s *Store) ImportJSON(ctx context.Context, r io.Reader) (int, error) {
	var incoming []struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Notes   string `json:"notes"`
	}
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("parsing reseller JSON: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM resellers"); err != nil {
		return 0, fmt.Errorf("clearing resellers: %w", err)
	}

	count := 0
	for _, in := range incoming {
		if in.Name == "" || in.Address == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO resellers (name, address, notes) VALUES (?, ?, ?)",
			in.Name, in.Address, in.Notes,
		); err != nil {
			return 0, fmt.Errorf("inserting reseller %q: %w", in.Name, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return count, nil
}
