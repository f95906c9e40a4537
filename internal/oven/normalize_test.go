package oven

import (
	"errors"
	"testing"
	"time"
)

// fixedClock returns a clock function pinned to a known instant.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestNormalizer(at time.Time) *Normalizer {
	n := NewNormalizer()
	n.now = fixedClock(at)
	return n
}

// TestNormalizeMissingDeviceID verifies messages without an id are dropped.
func TestNormalizeMissingDeviceID(t *testing.T) {
	n := newTestNormalizer(time.Now())

	_, err := n.Normalize(map[string]interface{}{
		"nodes": map[string]interface{}{
			"lamp": map[string]interface{}{"on": true},
		},
	})
	if !errors.Is(err, ErrNoDeviceID) {
		t.Fatalf("Normalize() error = %v, want ErrNoDeviceID", err)
	}
}

// TestNormalizeNilMessage verifies a nil body is rejected as malformed.
func TestNormalizeNilMessage(t *testing.T) {
	n := newTestNormalizer(time.Now())

	_, err := n.Normalize(nil)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("Normalize(nil) error = %v, want ErrMalformedMessage", err)
	}
}

// TestNormalizeDeviceIDKeys verifies both id spellings are accepted.
func TestNormalizeDeviceIDKeys(t *testing.T) {
	n := newTestNormalizer(time.Now())

	tests := []struct {
		name string
		raw  map[string]interface{}
		want string
	}{
		{"id key", map[string]interface{}{"id": "oven-1"}, "oven-1"},
		{"cookerId key", map[string]interface{}{"cookerId": "oven-2"}, "oven-2"},
		{"id wins over cookerId", map[string]interface{}{"id": "oven-1", "cookerId": "oven-2"}, "oven-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, err := n.Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if delta.DeviceID != tt.want {
				t.Errorf("DeviceID = %q, want %q", delta.DeviceID, tt.want)
			}
		})
	}
}

// TestNormalizeMarkers verifies version and receipt marker assignment.
func TestNormalizeMarkers(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer(at)

	delta, err := n.Normalize(map[string]interface{}{
		"id":      "oven-1",
		"version": float64(42),
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !delta.Marker.HasVersion || delta.Marker.Version != 42 {
		t.Errorf("Marker = %s, want v42", delta.Marker)
	}

	delta, err = n.Normalize(map[string]interface{}{"id": "oven-1"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if delta.Marker.HasVersion {
		t.Errorf("Marker = %s, want unnumbered receipt marker", delta.Marker)
	}
	if !delta.Marker.ReceivedAt.Equal(at) {
		t.Errorf("ReceivedAt = %s, want %s", delta.Marker.ReceivedAt, at)
	}
}

// TestNormalizeGeneration verifies device type parsing.
func TestNormalizeGeneration(t *testing.T) {
	n := newTestNormalizer(time.Now())

	tests := []struct {
		raw  string
		want HardwareGeneration
	}{
		{"oven_v1", GenerationV1},
		{"oven_v2", GenerationV2},
		{"v1", GenerationV1},
		{"v2", GenerationV2},
		{"toaster_v9", GenerationUnknown},
		{"", GenerationUnknown},
	}

	for _, tt := range tests {
		delta, err := n.Normalize(map[string]interface{}{"id": "oven-1", "type": tt.raw})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if delta.Generation != tt.want {
			t.Errorf("type %q: Generation = %q, want %q", tt.raw, delta.Generation, tt.want)
		}
	}
}

// nestedMessage builds a first-generation envelope message.
func nestedMessage() map[string]interface{} {
	return map[string]interface{}{
		"cookerId": "oven-1",
		"type":     "oven_v1",
		"state": map[string]interface{}{
			"version": float64(7),
			"mode":    "cook",
			"nodes": map[string]interface{}{
				"temperatureBulbs": map[string]interface{}{
					"mode": "dry",
					"dry": map[string]interface{}{
						"current":  map[string]interface{}{"celsius": 180.5, "fahrenheit": 356.9},
						"setpoint": map[string]interface{}{"celsius": 200.0},
					},
					"wet": map[string]interface{}{
						"current": map[string]interface{}{"celsius": 60.0},
						"dosed":   true,
					},
				},
				"timer": map[string]interface{}{
					"mode":    "running",
					"initial": float64(600),
					"current": float64(480),
				},
				"fan":         map[string]interface{}{"speed": float64(100)},
				"exhaustVent": map[string]interface{}{"state": "open"},
				"door":        map[string]interface{}{"closed": true},
				"waterTank":   map[string]interface{}{"empty": false},
				"lamp":        map[string]interface{}{"on": true},
			},
			"systemInfo": map[string]interface{}{
				"firmwareVersion": "1.2.3",
				"online":          true,
			},
		},
	}
}

// flatMessage builds the same state in the flat dialect.
func flatMessage() map[string]interface{} {
	return map[string]interface{}{
		"id":      "oven-1",
		"type":    "oven_v2",
		"version": float64(7),
		"mode":    "cooking",
		"nodes": map[string]interface{}{
			"temperatureBulbs": map[string]interface{}{
				"mode": "dry",
				"dry": map[string]interface{}{
					"current":  180.5,
					"setpoint": 200.0,
				},
				"wet": map[string]interface{}{
					"current": 60.0,
					"dosed":   true,
				},
			},
			"timer": map[string]interface{}{
				"mode":    "running",
				"initial": float64(600),
				"current": float64(480),
			},
			"fan":       map[string]interface{}{"speed": float64(100)},
			"vent":      map[string]interface{}{"open": true},
			"door":      map[string]interface{}{"closed": true},
			"waterTank": map[string]interface{}{"empty": false},
			"lamp":      map[string]interface{}{"on": true},
		},
		"systemInfo": map[string]interface{}{
			"firmwareVersion": "1.2.3",
			"online":          true,
		},
	}
}

// TestNormalizeDialectEquivalence verifies both wire dialects produce
// snapshots that agree field for field.
func TestNormalizeDialectEquivalence(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer(at)

	nested, err := n.Normalize(nestedMessage())
	if err != nil {
		t.Fatalf("Normalize(nested) error = %v", err)
	}
	flat, err := n.Normalize(flatMessage())
	if err != nil {
		t.Fatalf("Normalize(flat) error = %v", err)
	}

	r1 := NewRegistry()
	r1.Apply(nested)
	r2 := NewRegistry()
	r2.Apply(flat)

	s1, err := r1.Snapshot("oven-1")
	if err != nil {
		t.Fatalf("Snapshot(nested) error = %v", err)
	}
	s2, err := r2.Snapshot("oven-1")
	if err != nil {
		t.Fatalf("Snapshot(flat) error = %v", err)
	}

	if s1.OperatingMode == nil || s2.OperatingMode == nil || *s1.OperatingMode != *s2.OperatingMode {
		t.Errorf("OperatingMode mismatch: nested=%v flat=%v", s1.OperatingMode, s2.OperatingMode)
	}
	if *s1.OperatingMode != ModeCooking {
		t.Errorf("OperatingMode = %q, want cooking", *s1.OperatingMode)
	}
	if *s1.TemperatureBulbs.Dry.Current != *s2.TemperatureBulbs.Dry.Current {
		t.Errorf("Dry.Current mismatch: nested=%v flat=%v",
			*s1.TemperatureBulbs.Dry.Current, *s2.TemperatureBulbs.Dry.Current)
	}
	if *s1.TemperatureBulbs.Wet.Dosed != *s2.TemperatureBulbs.Wet.Dosed {
		t.Error("Wet.Dosed mismatch between dialects")
	}
	if *s1.Timer.RemainingSeconds != 480 || *s2.Timer.RemainingSeconds != 480 {
		t.Errorf("Timer.RemainingSeconds: nested=%v flat=%v, want 480",
			*s1.Timer.RemainingSeconds, *s2.Timer.RemainingSeconds)
	}
	if !*s1.VentOpen || !*s2.VentOpen {
		t.Errorf("VentOpen: nested=%v flat=%v, want true", *s1.VentOpen, *s2.VentOpen)
	}
	if *s1.WaterTankEmpty || *s2.WaterTankEmpty {
		t.Error("WaterTankEmpty should be false in both dialects")
	}
	if s1.SystemInfo.FirmwareVersion != s2.SystemInfo.FirmwareVersion {
		t.Error("SystemInfo.FirmwareVersion mismatch between dialects")
	}
}

// TestNormalizeFahrenheitOnly verifies Fahrenheit-only temperatures
// convert to canonical Celsius.
func TestNormalizeFahrenheitOnly(t *testing.T) {
	n := newTestNormalizer(time.Now())

	delta, err := n.Normalize(map[string]interface{}{
		"id": "oven-1",
		"nodes": map[string]interface{}{
			"temperatureBulbs": map[string]interface{}{
				"mode": "dry",
				"dry": map[string]interface{}{
					"current": map[string]interface{}{"fahrenheit": 212.0},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	got := *delta.TemperatureBulbs.Dry.Current
	if got < 99.99 || got > 100.01 {
		t.Errorf("Dry.Current = %v°C, want 100°C", got)
	}
}

// TestNormalizeSteamVariants verifies all steam generator shapes map.
func TestNormalizeSteamVariants(t *testing.T) {
	n := newTestNormalizer(time.Now())

	delta, err := n.Normalize(map[string]interface{}{
		"id": "oven-1",
		"nodes": map[string]interface{}{
			"steamGenerators": map[string]interface{}{
				"mode": "relative-humidity",
				"relativeHumidity": map[string]interface{}{
					"current":  float64(55),
					"setpoint": float64(80),
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if delta.Steam.Mode != SteamModeRelativeHumidity {
		t.Errorf("Steam.Mode = %q, want relative-humidity", delta.Steam.Mode)
	}
	if *delta.Steam.RelativeHumiditySetpoint != 80 {
		t.Errorf("RelativeHumiditySetpoint = %v, want 80", *delta.Steam.RelativeHumiditySetpoint)
	}

	// First-generation relativeOutput reports measured output.
	delta, err = n.Normalize(map[string]interface{}{
		"id": "oven-1",
		"nodes": map[string]interface{}{
			"steamGenerators": map[string]interface{}{
				"mode":            "steam-percentage",
				"steamPercentage": map[string]interface{}{"setpoint": float64(40)},
				"relativeOutput":  map[string]interface{}{"percentage": float64(37)},
			},
		},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if delta.Steam.Mode != SteamModePercentage {
		t.Errorf("Steam.Mode = %q, want steam-percentage", delta.Steam.Mode)
	}
	if *delta.Steam.PercentageSetpoint != 40 {
		t.Errorf("PercentageSetpoint = %v, want 40", *delta.Steam.PercentageSetpoint)
	}
	if *delta.Steam.RelativeHumidityCurrent != 37 {
		t.Errorf("RelativeHumidityCurrent = %v, want 37", *delta.Steam.RelativeHumidityCurrent)
	}
}

// TestNormalizePartiality verifies a sparse message produces a sparse delta.
func TestNormalizePartiality(t *testing.T) {
	n := newTestNormalizer(time.Now())

	delta, err := n.Normalize(map[string]interface{}{
		"id": "oven-1",
		"nodes": map[string]interface{}{
			"lamp": map[string]interface{}{"on": true},
		},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	groups := delta.Groups()
	if len(groups) != 1 || groups[0] != GroupLamp {
		t.Errorf("Groups() = %v, want [lamp]", groups)
	}
	if delta.TemperatureBulbs != nil || delta.Timer != nil || delta.SystemInfo != nil {
		t.Error("unmentioned groups must stay nil")
	}
}

// TestNormalizeHeatingElements verifies the heating element node mapping.
func TestNormalizeHeatingElements(t *testing.T) {
	n := newTestNormalizer(time.Now())

	delta, err := n.Normalize(map[string]interface{}{
		"id": "oven-1",
		"nodes": map[string]interface{}{
			"heatingElements": map[string]interface{}{
				"top":    map[string]interface{}{"on": false, "watts": float64(0)},
				"bottom": map[string]interface{}{"on": false},
				"rear":   map[string]interface{}{"on": true, "watts": float64(2000), "failed": false},
			},
		},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	he := delta.HeatingElements
	if he == nil {
		t.Fatal("HeatingElements is nil")
	}
	if !*he.Rear.On || *he.Rear.Watts != 2000 || *he.Rear.Failed {
		t.Errorf("Rear = %+v, want on with 2000W and no fault", he.Rear)
	}
	if *he.Top.On {
		t.Error("Top.On = true, want false")
	}
	if he.Bottom.Watts != nil {
		t.Error("Bottom.Watts should be nil when absent from the wire")
	}
}

// TestNormalizeActiveCook verifies cook program mapping.
func TestNormalizeActiveCook(t *testing.T) {
	n := newTestNormalizer(time.Now())

	delta, err := n.Normalize(map[string]interface{}{
		"id": "oven-1",
		"nodes": map[string]interface{}{
			"cook": map[string]interface{}{
				"name":         "sourdough",
				"stages":       []interface{}{map[string]interface{}{}, map[string]interface{}{}, map[string]interface{}{}},
				"currentStage": float64(1),
			},
		},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	ac := delta.ActiveCook
	if ac == nil {
		t.Fatal("ActiveCook is nil")
	}
	if ac.Name != "sourdough" || ac.StageCount != 3 || ac.StageIndex != 1 {
		t.Errorf("ActiveCook = %+v, want name=sourdough stages=3 index=1", ac)
	}
}

// TestNormalizeDiscoveryStateString verifies discovery payloads that
// carry state as a bare string still yield the mode.
func TestNormalizeDiscoveryStateString(t *testing.T) {
	n := newTestNormalizer(time.Now())

	delta, err := n.Normalize(map[string]interface{}{
		"cookerId": "oven-1",
		"type":     "oven_v2",
		"state":    "idle",
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !delta.HasRawMode || delta.RawMode != "idle" {
		t.Errorf("RawMode = %q (has=%v), want idle", delta.RawMode, delta.HasRawMode)
	}
	if delta.Generation != GenerationV2 {
		t.Errorf("Generation = %q, want v2", delta.Generation)
	}
}

// TestNormalizeCoarseTemperature verifies the device-level temperature
// pair of a discovery payload maps to its own field group.
func TestNormalizeCoarseTemperature(t *testing.T) {
	n := newTestNormalizer(time.Now())

	delta, err := n.Normalize(map[string]interface{}{
		"cookerId":           "oven-1",
		"type":               "oven_v1",
		"state":              "cooking",
		"currentTemperature": 187.5,
		"targetTemperature":  200.0,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if delta.CoarseTemperature == nil {
		t.Fatal("CoarseTemperature not mapped")
	}
	if delta.CoarseTemperature.Current == nil || *delta.CoarseTemperature.Current != 187.5 {
		t.Errorf("Current = %v, want 187.5", delta.CoarseTemperature.Current)
	}
	if delta.CoarseTemperature.Target == nil || *delta.CoarseTemperature.Target != 200.0 {
		t.Errorf("Target = %v, want 200", delta.CoarseTemperature.Target)
	}

	// Absent pair leaves the group nil.
	delta, err = n.Normalize(map[string]interface{}{"cookerId": "oven-1", "state": "idle"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if delta.CoarseTemperature != nil {
		t.Errorf("CoarseTemperature = %+v, want nil", delta.CoarseTemperature)
	}
}

// TestNormalizeBulbModeTriState verifies the active bulb mode is only
// set when the wire states it.
func TestNormalizeBulbModeTriState(t *testing.T) {
	n := newTestNormalizer(time.Now())

	bulbs := func(fields map[string]interface{}) *TemperatureBulbs {
		t.Helper()
		delta, err := n.Normalize(map[string]interface{}{
			"id":    "oven-1",
			"nodes": map[string]interface{}{"temperatureBulbs": fields},
		})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		return delta.TemperatureBulbs
	}

	got := bulbs(map[string]interface{}{
		"dry": map[string]interface{}{"setpoint": 200.0},
	})
	if got.ActiveMode != nil {
		t.Errorf("ActiveMode = %q without a wire mode, want nil", *got.ActiveMode)
	}

	got = bulbs(map[string]interface{}{"mode": "wet"})
	if got.ActiveMode == nil || *got.ActiveMode != BulbModeWet {
		t.Errorf("ActiveMode = %v, want wet", got.ActiveMode)
	}

	got = bulbs(map[string]interface{}{"mode": "sous-vide"})
	if got.ActiveMode != nil {
		t.Errorf("ActiveMode = %q for unrecognized mode, want nil", *got.ActiveMode)
	}
}

// TestNormalizeIdempotence verifies the same message normalizes to the
// same delta content.
func TestNormalizeIdempotence(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer(at)

	d1, err := n.Normalize(flatMessage())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	d2, err := n.Normalize(flatMessage())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	g1, g2 := d1.Groups(), d2.Groups()
	if len(g1) != len(g2) {
		t.Fatalf("group counts differ: %v vs %v", g1, g2)
	}
	if d1.Marker != d2.Marker {
		t.Errorf("markers differ: %s vs %s", d1.Marker, d2.Marker)
	}
	if *d1.TemperatureBulbs.Dry.Setpoint != *d2.TemperatureBulbs.Dry.Setpoint {
		t.Error("setpoints differ across identical normalizations")
	}
}
