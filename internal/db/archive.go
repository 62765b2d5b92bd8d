// Package db archives fetched rack directories so that availability can be
// inspected over time. SQLite and PostgreSQL backends share one interface.
package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/citybike"
)

// Archive drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Archive stores directory snapshots
type Archive interface {
	SaveDirectory(ctx context.Context, polledAt time.Time, dir *citybike.Directory) (string, error)
	RecentSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error)
	RackHistory(ctx context.Context, rackID string, limit int) ([]RackObservation, error)
	Cleanup(ctx context.Context, retention time.Duration) error
	Close() error
}

// SnapshotSummary describes one archived fetch
type SnapshotSummary struct {
	ID         string    `json:"id"`
	PolledAt   time.Time `json:"polledAt"`
	Generated  int64     `json:"generated"`
	LastUpdate int64     `json:"lastUpdate"`
	RackCount  int       `json:"rackCount"`
}

// RackObservation is the status of one rack in one snapshot
type RackObservation struct {
	SnapshotID    string    `json:"snapshotId"`
	PolledAt      time.Time `json:"polledAt"`
	ClassicBikes  int       `json:"classicBikes"`
	ElectricBikes int       `json:"electricBikes"`
	EmptySlots    int       `json:"emptySlots"`
}

// Open connects the archive for driver and makes sure its schema exists.
// dsn is a file path for sqlite and a connection URL for postgres.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch driver {
	case DriverSQLite:
		archive, err := ConnectSQLite(dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := archive.EnsureSchema(ctx); err != nil {
			archive.Close()
			return nil, err
		}
		return archive, nil
	case DriverPostgres:
		archive, err := ConnectPostgres(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		if err := archive.EnsureSchema(ctx); err != nil {
			archive.Close()
			return nil, err
		}
		return archive, nil
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
