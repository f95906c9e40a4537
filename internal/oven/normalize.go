package oven

import (
	"fmt"
	"strings"
	"time"
)

// Normalizer converts raw decoded JSON messages into StateDeltas.
//
// The cloud speaks two dialects. First-generation ovens wrap the
// payload in an envelope ({"state": {"nodes": ..., "systemInfo": ...}})
// while second-generation ovens put nodes and systemInfo at the top
// level. The normalizer probes the shape and hoists the nested body so
// the rest of the mapping is dialect-blind.
//
// Normalization is stateless per message apart from the injectable
// clock used to stamp unnumbered markers; a Normalizer is safe for
// concurrent use.
type Normalizer struct {
	logger Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewNormalizer creates a Normalizer with a no-op logger.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the normalizer.
func (n *Normalizer) SetLogger(logger Logger) {
	if logger != nil {
		n.logger = logger
	}
}

// Normalize converts one raw message into a StateDelta.
//
// Parameters:
//   - raw: the decoded JSON object as received from the cloud
//
// Returns:
//   - *StateDelta: the sparse delta, carrying only the field groups the
//     message actually mentioned
//   - error: ErrNoDeviceID when the message names no device (such
//     messages are dropped, never retried), ErrMalformedMessage when
//     the body is structurally unusable
//
// Two raw messages that describe the same state in different dialects
// normalize to equivalent deltas.
func (n *Normalizer) Normalize(raw map[string]interface{}) (*StateDelta, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil message: %w", ErrMalformedMessage)
	}

	id := stringField(raw, "id")
	if id == "" {
		id = stringField(raw, "cookerId")
	}
	if id == "" {
		return nil, ErrNoDeviceID
	}

	delta := &StateDelta{DeviceID: id}

	if g, ok := ParseGeneration(stringField(raw, "type")); ok {
		delta.Generation = g
	}

	// Hoist the nested dialect: a "state" object that itself carries
	// nodes, systemInfo, version or mode is the real body.
	body := raw
	if inner, ok := raw["state"].(map[string]interface{}); ok && isStateEnvelope(inner) {
		body = inner
	}

	if v, ok := numberField(body, "version"); ok {
		delta.Marker = VersionMarker(int64(v), n.now().UTC())
	} else if v, ok := numberField(raw, "version"); ok {
		delta.Marker = VersionMarker(int64(v), n.now().UTC())
	} else {
		delta.Marker = ReceiptMarker(n.now().UTC())
	}

	if m := stringField(body, "mode"); m != "" {
		delta.RawMode = m
		delta.HasRawMode = true
	} else if m := stringField(raw, "mode"); m != "" {
		delta.RawMode = m
		delta.HasRawMode = true
	} else if s, ok := raw["state"].(string); ok && s != "" {
		// Discovery payloads carry state as a bare string.
		delta.RawMode = s
		delta.HasRawMode = true
	}

	if nodes, ok := body["nodes"].(map[string]interface{}); ok {
		n.mapNodes(delta, nodes)
	}

	if si, ok := body["systemInfo"].(map[string]interface{}); ok {
		delta.SystemInfo = mapSystemInfo(si)
	}

	// Discovery payloads carry a device-level temperature pair instead
	// of bulb nodes.
	coarse := &CoarseTemperature{}
	if c, ok := numberField(raw, "currentTemperature"); ok {
		coarse.Current = &c
	}
	if target, ok := numberField(raw, "targetTemperature"); ok {
		coarse.Target = &target
	}
	if coarse.Current != nil || coarse.Target != nil {
		delta.CoarseTemperature = coarse
	}

	return delta, nil
}

// isStateEnvelope reports whether a "state" object is the nested
// dialect's body rather than some other use of the key.
func isStateEnvelope(m map[string]interface{}) bool {
	for _, key := range []string{"nodes", "systemInfo", "version", "mode"} {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

// mapNodes translates the wire "nodes" object into delta field groups.
// Absent nodes leave their group nil; the delta stays sparse.
func (n *Normalizer) mapNodes(delta *StateDelta, nodes map[string]interface{}) {
	if tb, ok := nodes["temperatureBulbs"].(map[string]interface{}); ok {
		delta.TemperatureBulbs = n.mapTemperatureBulbs(tb)
	}

	if p, ok := nodes["probe"].(map[string]interface{}); ok {
		delta.Probe = mapProbe(p)
	}

	if sg, ok := nodes["steamGenerators"].(map[string]interface{}); ok {
		delta.Steam = n.mapSteam(sg)
	}

	if t, ok := nodes["timer"].(map[string]interface{}); ok {
		delta.Timer = n.mapTimer(t)
	}

	if f, ok := nodes["fan"].(map[string]interface{}); ok {
		if speed, ok := numberField(f, "speed"); ok {
			s := int(speed)
			delta.FanSpeedPercent = &s
		}
	}

	// Vent state appears as exhaustVent{state:"open"|"closed"} on one
	// generation and vent{open:bool} on the other.
	if ev, ok := nodes["exhaustVent"].(map[string]interface{}); ok {
		if state := stringField(ev, "state"); state != "" {
			open := strings.EqualFold(state, "open")
			delta.VentOpen = &open
		}
	} else if v, ok := nodes["vent"].(map[string]interface{}); ok {
		if open, ok := boolField(v, "open"); ok {
			delta.VentOpen = &open
		}
	}

	if d, ok := nodes["door"].(map[string]interface{}); ok {
		if closed, ok := boolField(d, "closed"); ok {
			delta.DoorClosed = &closed
		}
	}

	if wt, ok := nodes["waterTank"].(map[string]interface{}); ok {
		if empty, ok := boolField(wt, "empty"); ok {
			delta.WaterTankEmpty = &empty
		} else if low, ok := boolField(wt, "low"); ok {
			delta.WaterTankEmpty = &low
		}
	}

	if he, ok := nodes["heatingElements"].(map[string]interface{}); ok {
		delta.HeatingElements = mapHeatingElements(he)
	}

	if l, ok := nodes["lamp"].(map[string]interface{}); ok {
		if on, ok := boolField(l, "on"); ok {
			delta.LampOn = &on
		}
	}

	if c, ok := nodes["cook"].(map[string]interface{}); ok {
		delta.ActiveCook = mapActiveCook(c)
	}
}

func (n *Normalizer) mapTemperatureBulbs(tb map[string]interface{}) *TemperatureBulbs {
	out := &TemperatureBulbs{}

	// ActiveMode stays nil unless the wire states it; an absent or
	// unrecognized mode is never replaced with a guess.
	switch mode := strings.ToLower(stringField(tb, "mode")); mode {
	case "wet":
		m := BulbModeWet
		out.ActiveMode = &m
	case "dry":
		m := BulbModeDry
		out.ActiveMode = &m
	case "":
	default:
		n.logger.Warn("unrecognized bulb mode ignored", "bulb_mode", mode)
	}

	if dry, ok := tb["dry"].(map[string]interface{}); ok {
		out.Dry = mapBulbReading(dry)
	}
	if wet, ok := tb["wet"].(map[string]interface{}); ok {
		out.Wet = mapBulbReading(wet)
		if dosed, ok := boolField(wet, "dosed"); ok {
			out.Wet.Dosed = &dosed
		}
	}
	return out
}

func mapBulbReading(b map[string]interface{}) BulbReading {
	var r BulbReading
	if c, ok := temperatureField(b, "current"); ok {
		r.Current = &c
	}
	if sp, ok := temperatureField(b, "setpoint"); ok {
		r.Setpoint = &sp
	}
	if f, ok := boolField(b, "failed"); ok {
		r.Faulted = &f
	}
	return r
}

func mapProbe(p map[string]interface{}) *Probe {
	out := &Probe{}
	if conn, ok := boolField(p, "connected"); ok {
		out.Connected = &conn
	}
	if c, ok := temperatureField(p, "current"); ok {
		out.Current = &c
	}
	if sp, ok := temperatureField(p, "setpoint"); ok {
		out.Setpoint = &sp
	}
	return out
}

func (n *Normalizer) mapSteam(sg map[string]interface{}) *Steam {
	out := &Steam{}

	switch strings.ToLower(stringField(sg, "mode")) {
	case "relative-humidity":
		out.Mode = SteamModeRelativeHumidity
	case "steam-percentage":
		out.Mode = SteamModePercentage
	case "idle", "":
		out.Mode = SteamModeIdle
	default:
		n.logger.Warn("unrecognized steam mode, treating as idle",
			"steam_mode", stringField(sg, "mode"))
		out.Mode = SteamModeIdle
	}

	if rh, ok := sg["relativeHumidity"].(map[string]interface{}); ok {
		if cur, ok := numberField(rh, "current"); ok {
			out.RelativeHumidityCurrent = &cur
		}
		if sp, ok := numberField(rh, "setpoint"); ok {
			out.RelativeHumiditySetpoint = &sp
		}
	}
	if sp, ok := sg["steamPercentage"].(map[string]interface{}); ok {
		if v, ok := numberField(sp, "setpoint"); ok {
			out.PercentageSetpoint = &v
		}
	}
	// First-generation ovens report measured output here instead.
	if ro, ok := sg["relativeOutput"].(map[string]interface{}); ok {
		if v, ok := numberField(ro, "percentage"); ok && out.RelativeHumidityCurrent == nil {
			out.RelativeHumidityCurrent = &v
		}
	}

	if evap, ok := sg["evaporator"].(map[string]interface{}); ok {
		if f, ok := boolField(evap, "failed"); ok && f {
			out.Faulted = &f
		}
	}
	if boiler, ok := sg["boiler"].(map[string]interface{}); ok {
		if f, ok := boolField(boiler, "failed"); ok && f {
			out.Faulted = &f
		}
	}

	return out
}

func (n *Normalizer) mapTimer(t map[string]interface{}) *Timer {
	out := &Timer{}

	switch strings.ToLower(stringField(t, "mode")) {
	case "running":
		out.Mode = TimerModeRunning
	case "paused":
		out.Mode = TimerModePaused
	case "idle", "stopped", "completed", "":
		out.Mode = TimerModeStopped
	default:
		n.logger.Warn("unrecognized timer mode, treating as stopped",
			"timer_mode", stringField(t, "mode"))
		out.Mode = TimerModeStopped
	}

	if initial, ok := numberField(t, "initial"); ok {
		v := int(initial)
		out.InitialSeconds = &v
	}
	if current, ok := numberField(t, "current"); ok {
		v := int(current)
		out.RemainingSeconds = &v
	}
	return out
}

func mapHeatingElements(he map[string]interface{}) *HeatingElements {
	out := &HeatingElements{}
	if top, ok := he["top"].(map[string]interface{}); ok {
		out.Top = mapHeatingElement(top)
	}
	if bottom, ok := he["bottom"].(map[string]interface{}); ok {
		out.Bottom = mapHeatingElement(bottom)
	}
	if rear, ok := he["rear"].(map[string]interface{}); ok {
		out.Rear = mapHeatingElement(rear)
	}
	return out
}

func mapHeatingElement(e map[string]interface{}) HeatingElement {
	var out HeatingElement
	if on, ok := boolField(e, "on"); ok {
		out.On = &on
	}
	if w, ok := numberField(e, "watts"); ok {
		v := int(w)
		out.Watts = &v
	}
	if f, ok := boolField(e, "failed"); ok {
		out.Failed = &f
	}
	return out
}

func mapSystemInfo(si map[string]interface{}) *SystemInfo {
	out := &SystemInfo{
		FirmwareVersion: stringField(si, "firmwareVersion"),
		HardwareVersion: stringField(si, "hardwareVersion"),
	}
	if online, ok := boolField(si, "online"); ok {
		out.Online = &online
	}
	if ts := stringField(si, "lastConnectedTimestamp"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			out.LastConnected = &t
		}
	}
	return out
}

func mapActiveCook(c map[string]interface{}) *ActiveCook {
	out := &ActiveCook{Name: stringField(c, "name")}
	if out.Name == "" {
		out.Name = stringField(c, "cookId")
	}

	if stages, ok := c["stages"].([]interface{}); ok {
		out.StageCount = len(stages)
	} else if count, ok := numberField(c, "stageCount"); ok {
		out.StageCount = int(count)
	}

	if idx, ok := numberField(c, "currentStage"); ok {
		out.StageIndex = int(idx)
	} else if idx, ok := numberField(c, "activeStageIndex"); ok {
		out.StageIndex = int(idx)
	}
	return out
}

// temperatureField reads a temperature value that may be either a bare
// number (Celsius) or a {celsius, fahrenheit} object. Celsius is
// canonical; a Fahrenheit-only object is converted.
func temperatureField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case map[string]interface{}:
		if c, ok := numberField(v, "celsius"); ok {
			return c, true
		}
		if f, ok := numberField(v, "fahrenheit"); ok {
			return FahrenheitToCelsius(f), true
		}
	}
	return 0, false
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func numberField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func boolField(m map[string]interface{}, key string) (bool, bool) {
	if b, ok := m[key].(bool); ok {
		return b, true
	}
	return false, false
}
