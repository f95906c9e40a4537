package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ovenlink/ovenlink/internal/anova"
	bridge "github.com/ovenlink/ovenlink/internal/bridges/anova"
	"github.com/ovenlink/ovenlink/internal/oven"
	"github.com/ovenlink/ovenlink/internal/recipes"
)

// startCookRequest is the body of POST /devices/{id}/commands/start.
// Stages use the same node schema as recipe stages on the wire.
type startCookRequest struct {
	Stages []map[string]interface{} `json:"stages"`
}

// setProbeRequest is the body of POST /devices/{id}/commands/probe.
type setProbeRequest struct {
	Celsius float64 `json:"celsius"`
}

// setLampRequest is the body of POST /devices/{id}/commands/lamp.
type setLampRequest struct {
	On bool `json:"on"`
}

// startRecipeRequest is the body of POST /devices/{id}/commands/recipe.
type startRecipeRequest struct {
	RecipeID string `json:"recipe_id"`
}

// handleStartCook starts a multi-stage cook with caller-supplied stages.
func (s *Server) handleStartCook(w http.ResponseWriter, r *http.Request) {
	var req startCookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Stages) == 0 {
		writeBadRequest(w, "at least one stage is required")
		return
	}

	s.sendCommand(w, r, anova.CommandStartCook, map[string]interface{}{
		"cookId": uuid.New().String(),
		"stages": req.Stages,
	})
}

// handleStopCook stops the active cook.
func (s *Server) handleStopCook(w http.ResponseWriter, r *http.Request) {
	s.sendCommand(w, r, anova.CommandStopCook, nil)
}

// handleSetProbe sets the food probe target temperature.
func (s *Server) handleSetProbe(w http.ResponseWriter, r *http.Request) {
	var req setProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Celsius < recipes.ProbeMin || req.Celsius > recipes.ProbeMax {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "probe setpoint outside 1-100°C")
		return
	}

	s.sendCommand(w, r, anova.CommandSetProbe, map[string]interface{}{
		"setpoint": map[string]interface{}{
			"celsius":    req.Celsius,
			"fahrenheit": oven.CelsiusToFahrenheit(req.Celsius),
		},
	})
}

// handleSetLamp switches the oven lamp.
func (s *Server) handleSetLamp(w http.ResponseWriter, r *http.Request) {
	var req setLampRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.sendCommand(w, r, anova.CommandSetLamp, map[string]interface{}{
		"on": req.On,
	})
}

// handleStartRecipe validates a library recipe against the device's
// hardware generation and starts it.
func (s *Server) handleStartRecipe(w http.ResponseWriter, r *http.Request) {
	if s.recipes == nil {
		writeUnavailable(w, "recipe library is not configured")
		return
	}

	var req startRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RecipeID == "" {
		writeBadRequest(w, "recipe_id is required")
		return
	}

	recipe, err := s.recipes.Get(req.RecipeID)
	if err != nil {
		if errors.Is(err, recipes.ErrRecipeNotFound) {
			writeNotFound(w, "recipe not found: "+req.RecipeID)
			return
		}
		writeInternalError(w, "failed to load recipe")
		return
	}

	deviceID := chi.URLParam(r, "id")
	identity, err := s.registry.Get(deviceID)
	if err != nil {
		writeNotFound(w, "device not found: "+deviceID)
		return
	}

	if err := recipe.Validate(identity.Generation); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	s.sendCommand(w, r, anova.CommandStartCook, map[string]interface{}{
		"cookId": uuid.New().String(),
		"stages": recipe.CookStages(),
	})
}

// sendCommand forwards a command through the bridge and maps its
// failure modes to HTTP status codes.
func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request, command string, body map[string]interface{}) {
	if s.bridge == nil {
		writeUnavailable(w, "command bridge is not configured")
		return
	}

	deviceID := chi.URLParam(r, "id")
	err := s.bridge.SendCommand(r.Context(), deviceID, command, body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"device_id": deviceID,
			"command":   command,
			"status":    "ok",
		})
	case errors.Is(err, oven.ErrDeviceNotFound):
		writeNotFound(w, "device not found: "+deviceID)
	case errors.Is(err, bridge.ErrNotSteady), errors.Is(err, anova.ErrNotConnected):
		writeConflict(w, "push channel is not connected")
	case errors.Is(err, anova.ErrCommandTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeUnavailable, "command timed out")
	case errors.Is(err, anova.ErrCommandFailed):
		writeError(w, http.StatusBadGateway, ErrCodeInternal, err.Error())
	default:
		s.logger.Error("command failed", "device_id", deviceID, "command", command, "error", err)
		writeInternalError(w, "command failed")
	}
}
