package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the preferences table. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS bridge_preferences (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a [Store] backed by a PostgreSQL table.
type Postgres struct {
	db    DB
	close func()
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a Postgres store over db. The caller owns db and is
// responsible for calling [Postgres.Migrate] before use.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects a pool to dsn and migrates the schema. Closing the
// returned store closes the pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("store: postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	p := &Postgres{db: pool, close: pool.Close}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate executes the [Schema] DDL against the database.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Get implements [Store].
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := p.db.QueryRow(ctx, `SELECT value FROM bridge_preferences WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: postgres get %q: %w", key, err)
	}
	return v, nil
}

// Set implements [Store].
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	const q = `
		INSERT INTO bridge_preferences (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := p.db.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("store: postgres set %q: %w", key, err)
	}
	return nil
}

// Delete implements [Store].
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM bridge_preferences WHERE key = $1`, key); err != nil {
		return fmt.Errorf("store: postgres delete %q: %w", key, err)
	}
	return nil
}

// Ping checks the connection with a trivial query.
func (p *Postgres) Ping(ctx context.Context) error {
	var one int
	if err := p.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store: postgres ping: %w", err)
	}
	return nil
}

// Close implements [Store]. Stores built with [NewPostgres] leave db open.
func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
