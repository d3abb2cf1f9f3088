// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

// rowScanner is the common surface of pgx.Row and *sql.Row, letting
// PostgresBackend's query logic run unmodified against either driver.
type rowScanner interface {
	Scan(dest ...any) error
}

// pgExecutor is the minimal surface PostgresBackend needs from its
// connection: a real pgxpool.Pool in production, and a database/sql handle
// (via the pgx stdlib driver or, in tests, go-sqlmock) in tests.
type pgExecutor interface {
	QueryRow(ctx context.Context, query string, args ...any) rowScanner
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// poolExecutor adapts a pgxpool.Pool to pgExecutor.
type poolExecutor struct {
	pool *pgxpool.Pool
}

func (p *poolExecutor) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return p.pool.QueryRow(ctx, query, args...)
}

func (p *poolExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PostgresBackend is a durable SharedBackend keyed identically to the
// in-process cache, storing compressed artifact JSON rows.
type PostgresBackend struct {
	exec  pgExecutor
	pool  *pgxpool.Pool
	table string
}

// NewPostgresBackend connects to a Postgres instance reachable at dsn and
// assumes a table of the given name already exists with columns
// (fingerprint text primary key, artifact bytea, source text, created_at
// timestamptz, ttl_seconds bigint).
func NewPostgresBackend(ctx context.Context, dsn, table string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: connecting to postgres shared cache: %w", err)
	}
	if table == "" {
		table = "dream_cache_entries"
	}
	return &PostgresBackend{exec: &poolExecutor{pool: pool}, pool: pool, table: table}, nil
}

// newPostgresBackendWithExecutor builds a PostgresBackend over an arbitrary
// pgExecutor, used by tests to substitute a go-sqlmock-backed database/sql
// handle for a live Postgres connection.
func newPostgresBackendWithExecutor(exec pgExecutor, table string) *PostgresBackend {
	return &PostgresBackend{exec: exec, table: table}
}

// Close releases the connection pool, if this backend owns one.
func (b *PostgresBackend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// Get fetches and decompresses the entry for fingerprint.
func (b *PostgresBackend) Get(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	query := fmt.Sprintf(`SELECT artifact, source, created_at, ttl_seconds FROM %s WHERE fingerprint = $1`, b.table)

	var compressed []byte
	var source string
	var createdAt time.Time
	var ttlSeconds int64

	row := b.exec.QueryRow(ctx, query, fingerprint)
	if err := row.Scan(&compressed, &source, &createdAt, &ttlSeconds); err != nil {
		return nil, false, nil
	}

	artifact, err := decodeArtifact(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("cache: decoding shared entry: %w", err)
	}

	return &Entry{
		Fingerprint: fingerprint,
		Artifact:    artifact,
		Source:      dream.Source(source),
		CreatedAt:   createdAt,
		TTL:         time.Duration(ttlSeconds) * time.Second,
	}, true, nil
}

// Put upserts the compressed entry for entry.Fingerprint.
func (b *PostgresBackend) Put(ctx context.Context, entry *Entry) error {
	compressed, err := encodeArtifact(entry.Artifact)
	if err != nil {
		return fmt.Errorf("cache: encoding shared entry: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (fingerprint, artifact, source, created_at, ttl_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO UPDATE SET
			artifact = EXCLUDED.artifact,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at,
			ttl_seconds = EXCLUDED.ttl_seconds`, b.table)

	_, err = b.exec.Exec(ctx, query, entry.Fingerprint, compressed, string(entry.Source), entry.CreatedAt, int64(entry.TTL.Seconds()))
	return err
}

// Delete removes the row for fingerprint, if any.
func (b *PostgresBackend) Delete(ctx context.Context, fingerprint string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE fingerprint = $1`, b.table)
	_, err := b.exec.Exec(ctx, query, fingerprint)
	return err
}
