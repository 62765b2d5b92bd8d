package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/citybike"
)

// SaveDirectory stores one fetched directory as a snapshot, appends every
// rack to rack_history and upserts rack_current. It returns the snapshot ID.
func (s *SQLite) SaveDirectory(ctx context.Context, polledAt time.Time, dir *citybike.Directory) (string, error) {
	if dir == nil {
		return "", fmt.Errorf("no directory to save")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snapshotID := uuid.New().String()
	polledAtStr := polledAt.UTC().Format(time.RFC3339)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots (snapshot_id, polled_at_utc, generated, last_update, rack_count) VALUES (?, ?, ?, ?, ?)",
		snapshotID, polledAtStr, dir.Generated, dir.LastUpdate, dir.Len(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}

	historyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rack_history (
			snapshot_id, rack_id, feed_position, name, latitude, longitude,
			bikes_classic, bikes_electric, slots_empty, polled_at_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare history statement: %w", err)
	}
	defer historyStmt.Close()

	currentStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rack_current (
			rack_id, snapshot_id, name, latitude, longitude,
			bikes_classic, bikes_electric, slots_empty, polled_at_utc, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (rack_id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			bikes_classic = excluded.bikes_classic,
			bikes_electric = excluded.bikes_electric,
			slots_empty = excluded.slots_empty,
			polled_at_utc = excluded.polled_at_utc,
			updated_at = excluded.updated_at`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare current statement: %w", err)
	}
	defer currentStmt.Close()

	for i, r := range dir.Racks {
		if _, err := historyStmt.ExecContext(ctx,
			snapshotID, r.ID, i, r.Name, r.Coordinate.Latitude, r.Coordinate.Longitude,
			r.ClassicBikes, r.ElectricBikes, r.EmptySlots, polledAtStr,
		); err != nil {
			return "", fmt.Errorf("failed to insert history for rack %s: %w", r.ID, err)
		}
		if _, err := currentStmt.ExecContext(ctx,
			r.ID, snapshotID, r.Name, r.Coordinate.Latitude, r.Coordinate.Longitude,
			r.ClassicBikes, r.ElectricBikes, r.EmptySlots, polledAtStr,
		); err != nil {
			return "", fmt.Errorf("failed to upsert rack %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved",
		zap.String("snapshot_id", snapshotID),
		zap.Int("racks", dir.Len()),
	)
	return snapshotID, nil
}
