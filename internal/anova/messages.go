package anova

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Wire message types. Outbound commands receive a RESPONSE envelope
// correlated by request id; inbound events arrive unsolicited.
const (
	// EventDeviceList is the device discovery event. The cloud sends
	// one shortly after connect and whenever the paired set changes.
	EventDeviceList = "EVENT_APO_WIFI_LIST"

	// EventState is an unsolicited device state push.
	EventState = "EVENT_APO_STATE"

	// MessageResponse is the reply envelope for a sent command.
	MessageResponse = "RESPONSE"
)

// Outbound command names.
const (
	CommandStartCook = "CMD_APO_START"
	CommandStopCook  = "CMD_APO_STOP"
	CommandSetProbe  = "CMD_APO_SET_PROBE"
	CommandSetLamp   = "CMD_APO_SET_LAMP"
)

// Envelope is the wire frame shared by commands, responses and events.
//
// For events RequestID is empty. Payload stays raw until the message
// type is known; state payloads are handed to the engine undecoded.
type Envelope struct {
	Command   string          `json:"command"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CommandResponse is the decoded payload of a RESPONSE envelope.
type CommandResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Success reports whether the cloud accepted the command.
func (r CommandResponse) Success() bool {
	return r.Status == "ok" || r.Status == "OK"
}

// DiscoveredDevice is one entry of an EVENT_APO_WIFI_LIST payload.
//
// Beyond identity, each entry carries the device's coarse state: the
// operational state string and a device-level temperature pair. For an
// oven that never pushes, this is its only state source.
type DiscoveredDevice struct {
	CookerID string `json:"cookerId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	PairedAt string `json:"pairedAt,omitempty"`

	State              string   `json:"state,omitempty"`
	CurrentTemperature *float64 `json:"currentTemperature,omitempty"`
	TargetTemperature  *float64 `json:"targetTemperature,omitempty"`
}

// ID returns the device id, preferring cookerId.
func (d DiscoveredDevice) ID() string {
	return d.CookerID
}

// CoarseState renders the entry as a raw state message so discovery
// flows through the same normalize path as push state.
func (d DiscoveredDevice) CoarseState() map[string]interface{} {
	raw := map[string]interface{}{
		"cookerId": d.CookerID,
		"type":     d.Type,
	}
	if d.State != "" {
		raw["state"] = d.State
	}
	if d.CurrentTemperature != nil {
		raw["currentTemperature"] = *d.CurrentTemperature
	}
	if d.TargetTemperature != nil {
		raw["targetTemperature"] = *d.TargetTemperature
	}
	return raw
}

// newRequestID generates a correlation id for an outbound command.
func newRequestID() string {
	return uuid.New().String()
}

// encodeCommand builds the wire frame for an outbound command.
//
// The target device id rides inside the payload; the cloud routes on
// it. A nil body sends a bare {"id": ...} payload.
func encodeCommand(command, requestID, deviceID string, body map[string]interface{}) ([]byte, error) {
	payload := make(map[string]interface{}, len(body)+1)
	for k, v := range body {
		payload[k] = v
	}
	payload["id"] = deviceID

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	frame, err := json.Marshal(Envelope{
		Command:   command,
		RequestID: requestID,
		Payload:   rawPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return frame, nil
}

// decodeEnvelope parses an inbound wire frame.
func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if env.Command == "" {
		return Envelope{}, fmt.Errorf("%w: missing command", ErrMalformedFrame)
	}
	return env, nil
}

// decodeResponse parses a RESPONSE envelope payload.
func decodeResponse(payload json.RawMessage, out *CommandResponse) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: response payload: %w", ErrMalformedFrame, err)
	}
	return nil
}

// decodeDeviceList parses an EVENT_APO_WIFI_LIST payload. The payload
// is either a bare array or an object with a "devices" array.
func decodeDeviceList(payload json.RawMessage) ([]DiscoveredDevice, error) {
	var devices []DiscoveredDevice
	if err := json.Unmarshal(payload, &devices); err == nil {
		return devices, nil
	}

	var wrapped struct {
		Devices []DiscoveredDevice `json:"devices"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: device list payload: %w", ErrMalformedFrame, err)
	}
	return wrapped.Devices, nil
}

// decodeStatePayload parses an EVENT_APO_STATE payload into the generic
// map the engine's normalizer consumes.
func decodeStatePayload(payload json.RawMessage) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: state payload: %w", ErrMalformedFrame, err)
	}
	return raw, nil
}
