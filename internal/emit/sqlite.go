// SPDX-License-Identifier: Apache-2.0

package emit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/omegaparse/omegaparse/internal/pipeline"
	"github.com/omegaparse/omegaparse/internal/schema"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore persists events and per-file classifications. Each file is
// written in its own transaction; re-running over the same input replaces
// rows by id, so the store converges to the same content.
type SQLiteStore struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations.
func OpenSQLite(path string, logger logrus.FieldLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; the reducer calls Consume sequentially anyway
	db.SetMaxOpenConns(1)

	version, dirty, err := runMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.WithFields(logrus.Fields{"path": path, "version": version, "dirty": dirty}).Debug("sqlite store ready")
	return &SQLiteStore{db: db, logger: logger}, nil
}

func runMigrations(db *sql.DB) (uint, bool, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Consume implements pipeline.Sink.
func (s *SQLiteStore) Consume(ctx context.Context, res pipeline.FileResult) error {
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertFile(ctx, tx, res); err != nil {
		return err
	}
	for _, evt := range res.Events {
		if err := insertEvent(ctx, tx, evt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertFile(ctx context.Context, tx *sql.Tx, res pipeline.FileResult) error {
	evidence, err := json.Marshal(res.Classification.Evidence)
	if err != nil {
		return err
	}
	var errText *string
	if res.Err != nil {
		msg := res.Err.Error()
		errText = &msg
	}

	query, args, err := sq.Insert("files").
		Options("OR REPLACE").
		Columns("path", "format", "source_system", "content_type", "confidence", "evidence", "records", "error").
		Values(res.Path, res.Format, string(res.Classification.SourceSystem), string(res.Classification.ContentType),
			res.Classification.Confidence, string(evidence), len(res.Events), errText).
		ToSql()
	if err != nil {
		return fmt.Errorf("build file insert: %w", err)
	}
	if _, err := tx.ExecContext(context.WithoutCancel(ctx), query, args...); err != nil {
		return fmt.Errorf("insert file %s: %w", res.Path, err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, evt schema.Event) error {
	evidence, err := json.Marshal(evt.Evidence)
	if err != nil {
		return err
	}
	fields, err := json.Marshal(evt.Fields)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(evt.Raw)
	if err != nil {
		return err
	}
	var occurred *string
	if evt.Timestamp != nil {
		ts := evt.Timestamp.UTC().Format(time.RFC3339Nano)
		occurred = &ts
	}

	query, args, err := sq.Insert("events").
		Options("OR REPLACE").
		Columns("id", "source_file", "record_index", "source_system", "content_type", "channel",
			"occurred_at", "confidence", "evidence", "normalized_fields", "payload_kind", "raw").
		Values(evt.ID, evt.SourceFile, evt.RecordIndex, string(evt.SourceSystem), string(evt.ContentType), evt.Channel,
			occurred, evt.Confidence, string(evidence), string(fields), string(evt.Raw.Kind()), string(raw)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build event insert: %w", err)
	}
	if _, err := tx.ExecContext(context.WithoutCancel(ctx), query, args...); err != nil {
		return fmt.Errorf("insert event %s: %w", evt.ID, err)
	}
	return nil
}

// CountByContentType reads back the stored grouping, sorted by key.
func (s *SQLiteStore) CountByContentType(ctx context.Context) (map[string]int, error) {
	query, args, err := sq.Select("content_type", "COUNT(*)").
		From("events").
		GroupBy("content_type").
		OrderBy("content_type").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// RawPayload returns the stored raw payload of an event.
func (s *SQLiteStore) RawPayload(ctx context.Context, id string) (string, error) {
	query, args, err := sq.Select("raw").From("events").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return "", err
	}
	var raw string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return "", fmt.Errorf("query event %s: %w", id, err)
	}
	return raw, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
