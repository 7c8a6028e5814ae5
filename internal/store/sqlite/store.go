// Package sqlite implements core.Store on an embedded SQLite database.
// It backs local imports without a PostgreSQL server and the test suites.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JonMunkholm/phantom/internal/core"
	"github.com/JonMunkholm/phantom/internal/store"
)

// Schema mirrors the PostgreSQL schema with SQLite types.
const Schema = `
CREATE TABLE IF NOT EXISTS people (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    name             TEXT NOT NULL,
    surname          TEXT,
    real_name        TEXT,
    gender           TEXT,
    has_image        BOOLEAN NOT NULL DEFAULT 0,
    complete_name_ns TEXT NOT NULL,
    complete_name_sn TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS people_complete_name_ns_idx ON people (complete_name_ns);
CREATE INDEX IF NOT EXISTS people_complete_name_sn_idx ON people (complete_name_sn);

CREATE TABLE IF NOT EXISTS person_types (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS nationalities (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS person_types_junction (
    person_id INTEGER NOT NULL REFERENCES people (id),
    type_id   INTEGER NOT NULL REFERENCES person_types (id),
    PRIMARY KEY (person_id, type_id)
);

CREATE TABLE IF NOT EXISTS person_nationalities_junction (
    person_id      INTEGER NOT NULL REFERENCES people (id),
    nationality_id INTEGER NOT NULL REFERENCES nationalities (id),
    PRIMARY KEY (person_id, nationality_id)
);
`

// Store implements core.Store using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ core.Store   = (*Store)(nil)
	_ core.Counter = (*Store)(nil)
)

// Open opens (or creates) the database at dsn and creates the schema.
// Use ":memory:" for a throwaway database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", core.ErrStoreConnection, err)
	}

	// SQLite has a single writer, and every connection to ":memory:" is a
	// separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %w", core.ErrStoreConnection, p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindByFullName returns people matching either derived full name.
func (s *Store) FindByFullName(ctx context.Context, nameSurname, surnameName string) ([]core.StoredPerson, error) {
	query, args, err := store.SelectByFullName(store.Question, nameSurname, surnameName).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build duplicate query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	people := make([]core.StoredPerson, 0)
	for rows.Next() {
		var p core.StoredPerson
		if err := rows.Scan(&p.ID, &p.Name, &p.Surname); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

// InTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(tx core.StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", core.ErrStoreConnection, err)
	}

	if err := fn(&storeTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrStoreWrite, err)
	}
	return nil
}

// Counts returns the row count of every importer table.
func (s *Store) Counts(ctx context.Context) (core.TableCounts, error) {
	query, args, err := store.CountTables(store.Question).ToSql()
	if err != nil {
		return core.TableCounts{}, fmt.Errorf("build count query: %w", err)
	}

	var c core.TableCounts
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&c.People, &c.PersonTypes, &c.Nationalities, &c.PersonTypeLinks, &c.PersonNationalityLinks,
	)
	if err != nil {
		return core.TableCounts{}, fmt.Errorf("count tables: %w", err)
	}
	return c, nil
}

type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) InsertPerson(ctx context.Context, rec core.PersonRecord) (int64, error) {
	query, args, err := store.InsertPerson(store.Question, rec).ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *storeTx) UpsertReference(ctx context.Context, kind core.ReferenceKind, name string) (int64, error) {
	b, err := store.UpsertReference(store.Question, kind, name)
	if err != nil {
		return 0, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *storeTx) LinkReference(ctx context.Context, kind core.ReferenceKind, personID, refID int64) error {
	b, err := store.InsertLink(store.Question, kind, personID, refID)
	if err != nil {
		return err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, query, args...)
	return err
}
