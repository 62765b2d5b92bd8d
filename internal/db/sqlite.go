package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// sqliteSchema is embedded at compile time from schema.sql
//
//go:embed schema.sql
var sqliteSchema string

// SQLite is the archive backed by a local SQLite file
type SQLite struct {
	conn    *sql.DB
	writeMu sync.Mutex // serializes writes; SQLite has a single writer
	logger  *zap.Logger
}

// ConnectSQLite opens a SQLite database with WAL mode enabled
func ConnectSQLite(dbPath string, logger *zap.Logger) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection plus writeMu avoids nested transaction errors when
	// cleanup runs concurrently with archiving.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.Warn("failed to set pragma", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	logger.Info("connected to SQLite archive", zap.String("path", dbPath))
	return &SQLite{conn: conn, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates tables if they don't exist
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.logger.Debug("archive schema ensured")
	return nil
}

// RecentSnapshots lists the newest snapshots first
func (s *SQLite) RecentSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT snapshot_id, polled_at_utc, generated, last_update, rack_count
		FROM snapshots
		ORDER BY polled_at_utc DESC, rowid DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []SnapshotSummary{}
	for rows.Next() {
		var (
			summary  SnapshotSummary
			polledAt string
		)
		if err := rows.Scan(&summary.ID, &polledAt, &summary.Generated, &summary.LastUpdate, &summary.RackCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if summary.PolledAt, err = time.Parse(time.RFC3339, polledAt); err != nil {
			return nil, fmt.Errorf("invalid polled_at_utc %q: %w", polledAt, err)
		}
		snapshots = append(snapshots, summary)
	}
	return snapshots, rows.Err()
}

// RackHistory lists the newest observations of one rack first
func (s *SQLite) RackHistory(ctx context.Context, rackID string, limit int) ([]RackObservation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT snapshot_id, polled_at_utc, bikes_classic, bikes_electric, slots_empty
		FROM rack_history
		WHERE rack_id = ?
		ORDER BY polled_at_utc DESC, rowid DESC
		LIMIT ?`, rackID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query rack history: %w", err)
	}
	defer rows.Close()

	observations := []RackObservation{}
	for rows.Next() {
		var (
			obs      RackObservation
			polledAt string
		)
		if err := rows.Scan(&obs.SnapshotID, &polledAt, &obs.ClassicBikes, &obs.ElectricBikes, &obs.EmptySlots); err != nil {
			return nil, fmt.Errorf("failed to scan rack history: %w", err)
		}
		if obs.PolledAt, err = time.Parse(time.RFC3339, polledAt); err != nil {
			return nil, fmt.Errorf("invalid polled_at_utc %q: %w", polledAt, err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}
