package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/db"
	"github.com/turku-citybike/racks/internal/geo"
	"github.com/turku-citybike/racks/internal/racklist"
)

// ListController is the part of racklist.Controller the handlers use
type ListController interface {
	Snapshot() racklist.View
	Subscribe() (<-chan racklist.View, func())
	Refresh()
	ResubscribeLocation()
}

// SnapshotRepository reads the snapshot archive
type SnapshotRepository interface {
	RecentSnapshots(ctx context.Context, limit int) ([]db.SnapshotSummary, error)
	RackHistory(ctx context.Context, rackID string, limit int) ([]db.RackObservation, error)
}

// RackHandler serves the rack list and the racks in it
type RackHandler struct {
	list    ListController
	archive SnapshotRepository
	logger  *zap.Logger
}

// NewRackHandler creates a handler; archive may be nil
func NewRackHandler(list ListController, archive SnapshotRepository, logger *zap.Logger) *RackHandler {
	return &RackHandler{list: list, archive: archive, logger: logger}
}

// GetRacks handles GET /api/racks
func (h *RackHandler) GetRacks(w http.ResponseWriter, r *http.Request) {
	view := h.list.Snapshot()

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, NewListResponse(view))
}

// GetRack handles GET /api/racks/{rackID}
func (h *RackHandler) GetRack(w http.ResponseWriter, r *http.Request) {
	rackID := chi.URLParam(r, "rackID")
	view := h.list.Snapshot()

	rack, ok := view.Directory.Rack(rackID)
	if !ok {
		writeError(w, http.StatusNotFound, "Rack not found", map[string]interface{}{
			"rackId": rackID,
			"state":  view.State,
		})
		return
	}

	var distance *float64
	if view.Coordinate != nil {
		d := geo.Distance(*view.Coordinate, rack.Coordinate)
		distance = &d
	}
	writeJSON(w, http.StatusOK, newRackResponse(rack, distance))
}

// GetRackHistory handles GET /api/racks/{rackID}/history
func (h *RackHandler) GetRackHistory(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "Snapshot archive is not configured", nil)
		return
	}

	rackID := chi.URLParam(r, "rackID")
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
		return
	}

	observations, err := h.archive.RackHistory(r.Context(), rackID, limit)
	if err != nil {
		h.logger.Error("failed to read rack history", zap.String("rack_id", rackID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve rack history", map[string]interface{}{
			"internal": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, RackHistoryResponse{
		RackID:       rackID,
		Observations: observations,
		Count:        len(observations),
	})
}

// Refresh handles POST /api/refresh
func (h *RackHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.list.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

// GetSnapshots handles GET /api/snapshots
func (h *RackHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "Snapshot archive is not configured", nil)
		return
	}

	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
		return
	}

	snapshots, err := h.archive.RecentSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read snapshots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve snapshots", map[string]interface{}{
			"internal": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, SnapshotsResponse{Snapshots: snapshots, Count: len(snapshots)})
}

// Health handles GET /health. The service is unhealthy while the last fetch failed.
func (h *RackHandler) Health(w http.ResponseWriter, r *http.Request) {
	view := h.list.Snapshot()
	now := time.Now().UTC()

	resp := HealthResponse{
		Status:    "ok",
		State:     view.State,
		Latency:   view.Latency,
		Timestamp: now,
		Feed: FeedFreshness{
			AgeSeconds: -1,
			Status:     FreshnessUnavailable,
		},
	}

	if view.Directory != nil {
		lastUpdate := time.Unix(view.Directory.LastUpdate, 0).UTC()
		age := int(now.Sub(lastUpdate).Seconds())
		resp.Feed = FeedFreshness{
			LastUpdate: &lastUpdate,
			AgeSeconds: age,
			Status:     CalculateFreshnessStatus(age),
		}
	}

	status := http.StatusOK
	switch {
	case view.LastError != nil:
		resp.Status = "error"
		resp.LastErrorKind = string(citybike.Kind(view.LastError))
		status = http.StatusServiceUnavailable
	case view.FetchedAt.IsZero():
		resp.Status = "starting"
	case resp.Feed.Status != FreshnessFresh:
		resp.Status = "degraded"
	}

	writeJSON(w, status, resp)
}
