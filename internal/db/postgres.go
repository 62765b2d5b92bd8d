package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/citybike"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Postgres is the archive backed by a PostgreSQL pool
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// ConnectPostgres creates a pool and pings the server
func ConnectPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to PostgreSQL archive")
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close releases the pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// EnsureSchema creates tables if they don't exist
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveDirectory stores one fetched directory. History rows are bulk loaded
// with COPY, the current table is upserted in one batch.
func (p *Postgres) SaveDirectory(ctx context.Context, polledAt time.Time, dir *citybike.Directory) (string, error) {
	if dir == nil {
		return "", fmt.Errorf("no directory to save")
	}

	snapshotID := uuid.New()
	polledAt = polledAt.UTC()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO snapshots (snapshot_id, polled_at_utc, generated, last_update, rack_count) VALUES ($1, $2, $3, $4, $5)",
		snapshotID, polledAt, dir.Generated, dir.LastUpdate, dir.Len(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}

	rows := make([][]any, len(dir.Racks))
	for i, r := range dir.Racks {
		rows[i] = []any{
			snapshotID, r.ID, i, r.Name, r.Coordinate.Latitude, r.Coordinate.Longitude,
			r.ClassicBikes, r.ElectricBikes, r.EmptySlots, polledAt,
		}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"rack_history"},
		[]string{
			"snapshot_id", "rack_id", "feed_position", "name", "latitude", "longitude",
			"bikes_classic", "bikes_electric", "slots_empty", "polled_at_utc",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return "", fmt.Errorf("failed to copy rack history: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range dir.Racks {
		batch.Queue(`
			INSERT INTO rack_current (
				rack_id, snapshot_id, name, latitude, longitude,
				bikes_classic, bikes_electric, slots_empty, polled_at_utc, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (rack_id) DO UPDATE SET
				snapshot_id = EXCLUDED.snapshot_id,
				name = EXCLUDED.name,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				bikes_classic = EXCLUDED.bikes_classic,
				bikes_electric = EXCLUDED.bikes_electric,
				slots_empty = EXCLUDED.slots_empty,
				polled_at_utc = EXCLUDED.polled_at_utc,
				updated_at = now()`,
			r.ID, snapshotID, r.Name, r.Coordinate.Latitude, r.Coordinate.Longitude,
			r.ClassicBikes, r.ElectricBikes, r.EmptySlots, polledAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return "", fmt.Errorf("failed to upsert current racks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}

	p.logger.Debug("snapshot saved",
		zap.String("snapshot_id", snapshotID.String()),
		zap.Int("racks", dir.Len()),
	)
	return snapshotID.String(), nil
}

// RecentSnapshots lists the newest snapshots first
func (p *Postgres) RecentSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT snapshot_id::text, polled_at_utc, generated, last_update, rack_count
		FROM snapshots
		ORDER BY polled_at_utc DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []SnapshotSummary{}
	for rows.Next() {
		var summary SnapshotSummary
		if err := rows.Scan(&summary.ID, &summary.PolledAt, &summary.Generated, &summary.LastUpdate, &summary.RackCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		summary.PolledAt = summary.PolledAt.UTC()
		snapshots = append(snapshots, summary)
	}
	return snapshots, rows.Err()
}

// RackHistory lists the newest observations of one rack first
func (p *Postgres) RackHistory(ctx context.Context, rackID string, limit int) ([]RackObservation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT snapshot_id::text, polled_at_utc, bikes_classic, bikes_electric, slots_empty
		FROM rack_history
		WHERE rack_id = $1
		ORDER BY polled_at_utc DESC
		LIMIT $2`, rackID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query rack history: %w", err)
	}
	defer rows.Close()

	observations := []RackObservation{}
	for rows.Next() {
		var obs RackObservation
		if err := rows.Scan(&obs.SnapshotID, &obs.PolledAt, &obs.ClassicBikes, &obs.ElectricBikes, &obs.EmptySlots); err != nil {
			return nil, fmt.Errorf("failed to scan rack history: %w", err)
		}
		obs.PolledAt = obs.PolledAt.UTC()
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// Cleanup deletes snapshots older than the retention duration; history
// rows follow through the cascade.
func (p *Postgres) Cleanup(ctx context.Context, retention time.Duration) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM snapshots WHERE polled_at_utc < $1", retentionCutoff(retention))
	if err != nil {
		return fmt.Errorf("failed to cleanup snapshots: %w", err)
	}
	if tag.RowsAffected() > 0 {
		p.logger.Info("archive cleanup",
			zap.Int64("deleted", tag.RowsAffected()),
			zap.Duration("retention", retention),
		)
	}
	return nil
}
