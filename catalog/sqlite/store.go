// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package sqlite implements catalog.Source on an SQLite database holding
// the skills and technologies tables.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/poiesic/semsearch/catalog"
	"github.com/poiesic/semsearch/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS skills (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL DEFAULT '',
	years INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS technologies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	homepage TEXT NOT NULL DEFAULT ''
);
`

// Store implements catalog.Source backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ catalog.Source = (*Store)(nil)

// Open opens (and if needed creates) the catalog database at path,
// applying the production pragmas and ensuring the schema exists.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("catalog: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: exec schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}

	return &Store{
		db:     db,
		logger: slog.Default().With("component", "catalog"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Page retrieves a bounded batch of records of one kind, ordered by id.
func (s *Store) Page(ctx context.Context, kind core.Kind, offset, limit int64) ([]catalog.Record, error) {
	if err := core.ValidateKind(kind); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error
	switch kind {
	case core.KindSkill:
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, name, category, summary, level, years
			FROM skills ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	case core.KindTechnology:
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, name, category, summary, homepage
			FROM technologies ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: page %s: %w", kind, err)
	}
	defer rows.Close()

	return scanRecords(rows, kind)
}

// Count returns the total number of records of one kind.
func (s *Store) Count(ctx context.Context, kind core.Kind) (int64, error) {
	if err := core.ValidateKind(kind); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tableFor(kind))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("catalog: count %s: %w", kind, err)
	}
	return count, nil
}

// ByIDs retrieves records of one kind by id, skipping missing ids.
func (s *Store) ByIDs(ctx context.Context, kind core.Kind, ids []core.ID) ([]catalog.Record, error) {
	if err := core.ValidateKind(kind); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}

	var query string
	switch kind {
	case core.KindSkill:
		query = fmt.Sprintf(
			`SELECT id, name, category, summary, level, years
			FROM skills WHERE id IN (%s) ORDER BY id`, placeholders)
	case core.KindTechnology:
		query = fmt.Sprintf(
			`SELECT id, name, category, summary, homepage
			FROM technologies WHERE id IN (%s) ORDER BY id`, placeholders)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: by ids %s: %w", kind, err)
	}
	defer rows.Close()

	return scanRecords(rows, kind)
}

// Insert adds records, assigning ids from the table sequence when Id is
// zero. Used by the seeder and tests; the query path never writes.
func (s *Store) Insert(ctx context.Context, records ...catalog.Record) ([]catalog.Record, error) {
	inserted := make([]catalog.Record, 0, len(records))
	for _, rec := range records {
		if err := core.ValidateKind(rec.Kind); err != nil {
			return nil, err
		}

		var res sql.Result
		var err error
		switch rec.Kind {
		case core.KindSkill:
			res, err = s.db.ExecContext(ctx,
				`INSERT INTO skills (name, category, summary, level, years)
				VALUES (?, ?, ?, ?, ?)`,
				rec.Name, rec.Category, rec.Summary, rec.Level, rec.Years)
		case core.KindTechnology:
			res, err = s.db.ExecContext(ctx,
				`INSERT INTO technologies (name, category, summary, homepage)
				VALUES (?, ?, ?, ?)`,
				rec.Name, rec.Category, rec.Summary, rec.Homepage)
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: insert %s: %w", rec.Kind, err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("catalog: last insert id: %w", err)
		}
		rec.Id = core.ID(id)
		inserted = append(inserted, rec)
	}
	return inserted, nil
}

func tableFor(kind core.Kind) string {
	if kind == core.KindSkill {
		return "skills"
	}
	return "technologies"
}

func scanRecords(rows *sql.Rows, kind core.Kind) ([]catalog.Record, error) {
	var records []catalog.Record
	for rows.Next() {
		var rec catalog.Record
		rec.Kind = kind
		var err error
		if kind == core.KindSkill {
			err = rows.Scan(&rec.Id, &rec.Name, &rec.Category, &rec.Summary, &rec.Level, &rec.Years)
		} else {
			err = rows.Scan(&rec.Id, &rec.Name, &rec.Category, &rec.Summary, &rec.Homepage)
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: scan %s: %w", kind, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
