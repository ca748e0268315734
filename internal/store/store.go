// Package store keeps catalogs in a SQLite database so large lists can be
// served without holding them in memory.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed catalog.
type Store struct {
	db *sql.DB
}

// ListInfo describes one stored list.
type ListInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// One writer, a few readers.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=10000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("Opened catalog store at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS lists (
			name TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			fill TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS candidates (
			list TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (list, position),
			FOREIGN KEY (list) REFERENCES lists(name) ON DELETE CASCADE
		)`,
	}
	for _, t := range tables {
		if _, err := s.db.Exec(t); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Import replaces every list of cat in one transaction. Lists not in cat are kept.
func (s *Store) Import(ctx context.Context, cat *catalog.Catalog) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var base int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM lists`).Scan(&base); err != nil {
		return fmt.Errorf("read list positions: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `INSERT INTO candidates (list, position, id, label, meta) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for i, name := range cat.Names() {
		fill, err := json.Marshal(cat.Fill(name))
		if err != nil {
			return fmt.Errorf("encode fill rule of %s: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO lists (name, position, fill) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET fill = excluded.fill, updated_at = CURRENT_TIMESTAMP`,
			name, base+i, string(fill))
		if err != nil {
			return fmt.Errorf("upsert list %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE list = ?`, name); err != nil {
			return fmt.Errorf("clear list %s: %w", name, err)
		}

		cands, _ := cat.List(name)
		for pos, c := range cands {
			meta, err := json.Marshal(c.Meta)
			if err != nil {
				return fmt.Errorf("encode meta of %s/%s: %w", name, c.Label, err)
			}
			if _, err := insert.ExecContext(ctx, name, pos, c.ID, c.Label, string(meta)); err != nil {
				return fmt.Errorf("insert %s/%s: %w", name, c.Label, err)
			}
		}
		log.Debugf("Imported list [%s]: %d candidates", name, len(cands))
	}

	return tx.Commit()
}

// Lists returns the stored lists in import order.
func (s *Store) Lists(ctx context.Context) ([]ListInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT l.name, COUNT(c.position)
		FROM lists l LEFT JOIN candidates c ON c.list = l.name
		GROUP BY l.name ORDER BY l.position`)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	var out []ListInfo
	for rows.Next() {
		var li ListInfo
		if err := rows.Scan(&li.Name, &li.Count); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// Catalog reads the whole store back into memory.
func (s *Store) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	lists, err := s.Lists(ctx)
	if err != nil {
		return nil, err
	}
	cat := catalog.New()
	for _, li := range lists {
		cands, err := s.query(ctx, li.Name, "")
		if err != nil {
			return nil, err
		}
		cat.Add(li.Name, cands...)

		var raw string
		if err := s.db.QueryRowContext(ctx, `SELECT fill FROM lists WHERE name = ?`, li.Name).Scan(&raw); err != nil {
			return nil, fmt.Errorf("read fill rule of %s: %w", li.Name, err)
		}
		var rule catalog.FillRule
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			log.Warnf("Ignoring bad fill rule of list [%s]: %v", li.Name, err)
		}
		cat.SetFill(li.Name, rule)
	}
	return cat, nil
}

// query returns the rows of a list in position order. A non-empty ASCII
// needle narrows the rows with instr; SQLite's lower() only folds ASCII, so
// other needles read the whole list and leave matching to the engine.
func (s *Store) query(ctx context.Context, list, needle string) ([]autocomplete.Candidate, error) {
	q := `SELECT id, label, meta FROM candidates WHERE list = ?`
	args := []any{list}
	if needle != "" && isASCII(needle) {
		q += ` AND instr(lower(label), ?) > 0`
		args = append(args, needle)
	}
	q += ` ORDER BY position`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", list, err)
	}
	defer rows.Close()

	var out []autocomplete.Candidate
	for rows.Next() {
		var (
			c    autocomplete.Candidate
			meta string
		)
		if err := rows.Scan(&c.ID, &c.Label, &meta); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &c.Meta); err != nil {
				log.Warnf("Bad meta for %s/%s: %v", list, c.Label, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// Source returns an asynchronous candidate source over a stored list.
func (s *Store) Source(list string) autocomplete.AsyncSource {
	return &listSource{store: s, list: list}
}

type listSource struct {
	store *Store
	list  string
}

func (l *listSource) Lookup(ctx context.Context, query string) ([]autocomplete.Candidate, error) {
	return l.store.query(ctx, l.list, autocomplete.NormalizeQuery(query))
}
