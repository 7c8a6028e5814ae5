// Package postgres implements core.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/phantom/internal/config"
	"github.com/JonMunkholm/phantom/internal/core"
	"github.com/JonMunkholm/phantom/internal/store"
)

// Schema creates the importer tables if they do not exist.
//
//go:embed schema.sql
var Schema string

// Conn is the subset of pgx used by Store. Both *pgx.Conn and
// *pgxpool.Pool satisfy it.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes people through a pgx connection or pool.
type Store struct {
	conn Conn
}

var (
	_ core.Store   = (*Store)(nil)
	_ core.Counter = (*Store)(nil)
)

// New wraps conn.
func New(conn Conn) *Store {
	return &Store{conn: conn}
}

// Connect opens a single connection; the caller must Close it.
func Connect(ctx context.Context, connString string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreConnection, err)
	}
	return conn, nil
}

// NewPool opens a connection pool sized from cfg and verifies it with a ping.
func NewPool(ctx context.Context, connString string, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreConnection, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", core.ErrStoreConnection, err)
	}

	return pool, nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// FindByFullName returns people matching either derived full name.
func (s *Store) FindByFullName(ctx context.Context, nameSurname, surnameName string) ([]core.StoredPerson, error) {
	sql, args, err := store.SelectByFullName(store.Dollar, nameSurname, surnameName).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build duplicate query: %w", err)
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}

	people, err := pgx.CollectRows(rows, pgx.RowToStructByName[core.StoredPerson])
	if err != nil {
		return nil, fmt.Errorf("scan people: %w", err)
	}
	return people, nil
}

// InTx runs fn in a transaction. The transaction is rolled back explicitly
// when fn fails and committed otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx core.StoreTx) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", core.ErrStoreConnection, err)
	}

	if err := fn(&storeTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrStoreWrite, err)
	}
	return nil
}

// Counts returns the row count of every importer table.
func (s *Store) Counts(ctx context.Context) (core.TableCounts, error) {
	sql, args, err := store.CountTables(store.Dollar).ToSql()
	if err != nil {
		return core.TableCounts{}, fmt.Errorf("build count query: %w", err)
	}

	var c core.TableCounts
	err = s.conn.QueryRow(ctx, sql, args...).Scan(
		&c.People, &c.PersonTypes, &c.Nationalities, &c.PersonTypeLinks, &c.PersonNationalityLinks,
	)
	if err != nil {
		return core.TableCounts{}, fmt.Errorf("count tables: %w", err)
	}
	return c, nil
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) InsertPerson(ctx context.Context, rec core.PersonRecord) (int64, error) {
	sql, args, err := store.InsertPerson(store.Dollar, rec).ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *storeTx) UpsertReference(ctx context.Context, kind core.ReferenceKind, name string) (int64, error) {
	b, err := store.UpsertReference(store.Dollar, kind, name)
	if err != nil {
		return 0, err
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *storeTx) LinkReference(ctx context.Context, kind core.ReferenceKind, personID, refID int64) error {
	b, err := store.InsertLink(store.Dollar, kind, personID, refID)
	if err != nil {
		return err
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, sql, args...)
	return err
}
