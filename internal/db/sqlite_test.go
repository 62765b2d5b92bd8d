package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/geo"
)

func openTestArchive(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "racks.db")

	archive, err := Open(context.Background(), DriverSQLite, path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() { archive.Close() })
	return archive.(*SQLite)
}

func testDirectory(classic int) *citybike.Directory {
	return citybike.NewDirectory([]citybike.Rack{
		{ID: "2", Name: "Beta", Coordinate: geo.Coordinate{Latitude: 60.46, Longitude: 22.26}, ClassicBikes: classic, EmptySlots: 9},
		{ID: "1", Name: "Alpha", Coordinate: geo.Coordinate{Latitude: 60.45, Longitude: 22.25}, ClassicBikes: 3, ElectricBikes: 2, EmptySlots: 5},
	}, 1700000000, 1700000030)
}

func TestSQLiteSaveAndList(t *testing.T) {
	ctx := context.Background()
	archive := openTestArchive(t)

	older := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)

	firstID, err := archive.SaveDirectory(ctx, older, testDirectory(1))
	if err != nil {
		t.Fatalf("SaveDirectory: %v", err)
	}
	secondID, err := archive.SaveDirectory(ctx, newer, testDirectory(4))
	if err != nil {
		t.Fatalf("SaveDirectory: %v", err)
	}
	if firstID == secondID {
		t.Fatal("expected distinct snapshot IDs")
	}

	snapshots, err := archive.RecentSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].ID != secondID {
		t.Errorf("expected newest snapshot %s first, got %s", secondID, snapshots[0].ID)
	}
	if !snapshots[0].PolledAt.Equal(newer) {
		t.Errorf("expected polled at %v, got %v", newer, snapshots[0].PolledAt)
	}
	if snapshots[0].RackCount != 2 || snapshots[0].LastUpdate != 1700000030 {
		t.Errorf("unexpected summary %+v", snapshots[0])
	}

	history, err := archive.RackHistory(ctx, "2", 10)
	if err != nil {
		t.Fatalf("RackHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(history))
	}
	if history[0].ClassicBikes != 4 || history[1].ClassicBikes != 1 {
		t.Errorf("expected classic bikes [4 1], got [%d %d]", history[0].ClassicBikes, history[1].ClassicBikes)
	}

	var current int
	if err := archive.conn.QueryRowContext(ctx, "SELECT bikes_classic FROM rack_current WHERE rack_id = '2'").Scan(&current); err != nil {
		t.Fatalf("query rack_current: %v", err)
	}
	if current != 4 {
		t.Errorf("expected current classic bikes 4, got %d", current)
	}
}

func TestSQLiteCleanup(t *testing.T) {
	ctx := context.Background()
	archive := openTestArchive(t)

	stale := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC().Add(-time.Minute)

	if _, err := archive.SaveDirectory(ctx, stale, testDirectory(1)); err != nil {
		t.Fatalf("SaveDirectory: %v", err)
	}
	freshID, err := archive.SaveDirectory(ctx, fresh, testDirectory(2))
	if err != nil {
		t.Fatalf("SaveDirectory: %v", err)
	}

	if err := archive.Cleanup(ctx, 24*time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	snapshots, err := archive.RecentSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].ID != freshID {
		t.Errorf("expected only %s to remain, got %+v", freshID, snapshots)
	}

	history, err := archive.RackHistory(ctx, "1", 10)
	if err != nil {
		t.Fatalf("RackHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected 1 observation after cleanup, got %d", len(history))
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	tests := []string{"", "mysql", DriverNone}
	for _, driver := range tests {
		t.Run(driver, func(t *testing.T) {
			if _, err := Open(context.Background(), driver, "", nil); err == nil {
				t.Errorf("expected error for driver %q", driver)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, expected int
	}{
		{0, 50},
		{-1, 50},
		{10, 10},
		{500, 500},
		{501, 50},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.expected {
			t.Errorf("clampLimit(%d): expected %d, got %d", tt.in, tt.expected, got)
		}
	}
}
