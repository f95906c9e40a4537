package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ovenlink/ovenlink/internal/oven"
)

// deviceResponse is the device summary returned by list/get endpoints.
type deviceResponse struct {
	ID         string `json:"id"`
	Generation string `json:"generation,omitempty"`
}

// deviceStateEvent is the payload broadcast on the WebSocket state channel.
type deviceStateEvent struct {
	DeviceID   string               `json:"device_id"`
	Generation string               `json:"generation,omitempty"`
	State      *oven.DeviceSnapshot `json:"state"`
}

// handleListDevices returns all known devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	identities := s.registry.List()
	sort.Slice(identities, func(i, j int) bool { return identities[i].ID < identities[j].ID })

	devices := make([]deviceResponse, 0, len(identities))
	for _, id := range identities {
		devices = append(devices, deviceResponse{
			ID:         id.ID,
			Generation: string(id.Generation),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device's identity.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	identity, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	writeJSON(w, http.StatusOK, deviceResponse{
		ID:         identity.ID,
		Generation: string(identity.Generation),
	})
}

// handleGetDeviceState returns the device's canonical snapshot.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snapshot, err := s.registry.Snapshot(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"state":     snapshot,
	})
}

// handleGetDeviceHistory returns the device's recorded state changes,
// newest first. The optional "limit" query parameter caps the result.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.history == nil {
		writeUnavailable(w, "state history is not configured")
		return
	}
	if _, err := s.registry.Get(id); err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, oven.ErrHistoryUnavailable) {
			writeUnavailable(w, "state history is not available")
			return
		}
		s.logger.Error("state history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to query state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"history":   entries,
		"count":     len(entries),
	})
}
