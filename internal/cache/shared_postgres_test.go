// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/dreamscapes-sub008/internal/dream"
)

// sqlExecutor adapts a database/sql handle to pgExecutor, letting
// PostgresBackend run unmodified against a go-sqlmock stub connection in
// place of a live pgxpool.Pool.
type sqlExecutor struct {
	db *sql.DB
}

func (s *sqlExecutor) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func newMockBackend(t *testing.T) (*PostgresBackend, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return newPostgresBackendWithExecutor(&sqlExecutor{db: db}, "dream_cache_entries"), mock, db
}

func TestPostgresBackendPutUpsertsEncodedEntry(t *testing.T) {
	b, mock, db := newMockBackend(t)
	defer db.Close()

	entry := &Entry{
		Fingerprint: "fp1",
		Artifact:    &dream.Artifact{ID: "a1", Title: "dusk"},
		Source:      dream.SourceAI,
		CreatedAt:   time.Now(),
		TTL:         30 * time.Minute,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dream_cache_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := b.Put(context.Background(), entry)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendGetDecodesStoredEntry(t *testing.T) {
	b, mock, db := newMockBackend(t)
	defer db.Close()

	original := &dream.Artifact{ID: "a1", Title: "dusk"}
	compressed, err := encodeArtifact(original)
	require.NoError(t, err)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"artifact", "source", "created_at", "ttl_seconds"}).
		AddRow(compressed, "ai", now, int64(1800))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT artifact, source, created_at, ttl_seconds FROM dream_cache_entries")).
		WithArgs("fp1").
		WillReturnRows(rows)

	entry, ok, err := b.Get(context.Background(), "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a1", entry.Artifact.ID)
	assert.Equal(t, dream.SourceAI, entry.Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendGetReturnsMissOnNoRows(t *testing.T) {
	b, mock, db := newMockBackend(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT artifact, source, created_at, ttl_seconds FROM dream_cache_entries")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := b.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendDeleteRemovesRow(t *testing.T) {
	b, mock, db := newMockBackend(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM dream_cache_entries")).
		WithArgs("fp1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := b.Delete(context.Background(), "fp1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
