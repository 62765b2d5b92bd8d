package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Cleanup deletes snapshots older than the retention duration
func (s *SQLite) Cleanup(ctx context.Context, retention time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cutoff := retentionCutoff(retention).Format(time.RFC3339)

	// rack_history first so the cascade is not needed
	queries := []struct {
		name  string
		query string
	}{
		{name: "rack_history", query: "DELETE FROM rack_history WHERE polled_at_utc < ?"},
		{name: "snapshots", query: "DELETE FROM snapshots WHERE polled_at_utc < ?"},
	}

	var totalDeleted int64
	for _, q := range queries {
		result, err := s.conn.ExecContext(ctx, q.query, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup %s: %w", q.name, err)
		}
		rows, _ := result.RowsAffected()
		totalDeleted += rows
	}

	if totalDeleted > 0 {
		s.logger.Info("archive cleanup",
			zap.Int64("deleted", totalDeleted),
			zap.Duration("retention", retention),
		)
	}
	return nil
}

// retentionCutoff never keeps less than an hour of history
func retentionCutoff(retention time.Duration) time.Time {
	if retention < time.Hour {
		retention = time.Hour
	}
	return time.Now().UTC().Add(-retention)
}

// RunCleanup calls Cleanup every interval until ctx is cancelled
func RunCleanup(ctx context.Context, archive Archive, retention, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := archive.Cleanup(ctx, retention); err != nil {
				logger.Error("archive cleanup failed", zap.Error(err))
			}
		}
	}
}
