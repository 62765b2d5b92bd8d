package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/geo"
	"github.com/turku-citybike/racks/internal/location"
)

// LocationHandler lets a client push its position into an in-memory location stream
type LocationHandler struct {
	subject *location.Subject
	list    ListController
	logger  *zap.Logger
}

// NewLocationHandler creates a handler. A nil subject means positions come
// from elsewhere and every request is answered with 409.
func NewLocationHandler(subject *location.Subject, list ListController, logger *zap.Logger) *LocationHandler {
	return &LocationHandler{subject: subject, list: list, logger: logger}
}

// PutLocation handles PUT /api/location
func (h *LocationHandler) PutLocation(w http.ResponseWriter, r *http.Request) {
	if h.subject == nil {
		writeError(w, http.StatusConflict, "Location is not accepted over HTTP", nil)
		return
	}

	var coord geo.Coordinate
	if err := json.NewDecoder(r.Body).Decode(&coord); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", map[string]interface{}{
			"internal": err.Error(),
		})
		return
	}
	if !coord.Valid() {
		writeError(w, http.StatusBadRequest, "Coordinate out of range", map[string]interface{}{
			"lat": coord.Latitude,
			"lon": coord.Longitude,
		})
		return
	}

	// a position after a failure means the user granted access again
	restarted := false
	if h.subject.Failed() != "" {
		h.subject.Reset()
		restarted = true
	}
	if err := h.subject.Send(coord); err != nil {
		writeError(w, http.StatusConflict, "Location stream has ended", map[string]interface{}{
			"internal": err.Error(),
		})
		return
	}
	if restarted {
		h.list.ResubscribeLocation()
	}

	h.logger.Debug("location updated", zap.Stringer("coordinate", coord))
	writeJSON(w, http.StatusAccepted, coord)
}

// DeleteLocation handles DELETE /api/location?reason=not_authorized|location_disabled
func (h *LocationHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if h.subject == nil {
		writeError(w, http.StatusConflict, "Location is not accepted over HTTP", nil)
		return
	}

	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = string(location.LocationDisabled)
	}
	failure, err := location.ParseFailure(reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown reason", map[string]interface{}{
			"reason":  reason,
			"allowed": []string{string(location.NotAuthorized), string(location.LocationDisabled)},
		})
		return
	}

	h.subject.Fail(failure)
	h.logger.Info("location stream ended", zap.String("failure", string(failure)))
	writeJSON(w, http.StatusAccepted, map[string]string{"failure": string(failure)})
}
