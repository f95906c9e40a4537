package oven

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestGetOrCreate verifies first-sight creation and stability.
func TestGetOrCreate(t *testing.T) {
	r := NewRegistry()

	id, created := r.GetOrCreate("oven-1", GenerationV2)
	if !created {
		t.Error("created = false on first sight")
	}
	if id.ID != "oven-1" || id.Generation != GenerationV2 {
		t.Errorf("identity = %+v, want oven-1/v2", id)
	}
	if id.DiscoveredAt.IsZero() {
		t.Error("DiscoveredAt is zero")
	}

	again, created := r.GetOrCreate("oven-1", GenerationV2)
	if created {
		t.Error("created = true on second sight")
	}
	if !again.DiscoveredAt.Equal(id.DiscoveredAt) {
		t.Error("DiscoveredAt changed on repeat GetOrCreate")
	}
}

// TestGetOrCreateGenerationUpgrade verifies a later discovery payload
// resolves an unknown generation, and never downgrades a known one.
func TestGetOrCreateGenerationUpgrade(t *testing.T) {
	r := NewRegistry()

	// First sight via a push message with no device type.
	id, _ := r.GetOrCreate("oven-1", GenerationUnknown)
	if id.Generation != GenerationUnknown {
		t.Fatalf("Generation = %q, want unknown", id.Generation)
	}

	// Discovery resolves it.
	id, _ = r.GetOrCreate("oven-1", GenerationV1)
	if id.Generation != GenerationV1 {
		t.Errorf("Generation = %q, want v1 after discovery", id.Generation)
	}

	// A later unknown must not erase it.
	id, _ = r.GetOrCreate("oven-1", GenerationUnknown)
	if id.Generation != GenerationV1 {
		t.Errorf("Generation = %q, want v1 preserved", id.Generation)
	}
}

// TestGetUnknownDevice verifies the not-found error path.
func TestGetUnknownDevice(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get("ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := r.Snapshot("ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Snapshot() error = %v, want ErrDeviceNotFound", err)
	}
}

// TestListAndCount verifies registry enumeration.
func TestListAndCount(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("oven-1", GenerationV1)
	r.GetOrCreate("oven-2", GenerationV2)
	r.GetOrCreate("oven-1", GenerationV1)

	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
	if got := len(r.List()); got != 2 {
		t.Errorf("List() length = %d, want 2", got)
	}
}

// TestSnapshotReaderIsolation verifies mutating a returned snapshot
// does not affect the registry's copy.
func TestSnapshotReaderIsolation(t *testing.T) {
	r := NewRegistry()
	r.Apply(&StateDelta{
		DeviceID:        "oven-1",
		Marker:          VersionMarker(1, time.Now().UTC()),
		FanSpeedPercent: intPtr(80),
	})

	s1, _ := r.Snapshot("oven-1")
	*s1.FanSpeedPercent = 0

	s2, _ := r.Snapshot("oven-1")
	if *s2.FanSpeedPercent != 80 {
		t.Errorf("FanSpeedPercent = %d, want 80 (reader mutated shared state)", *s2.FanSpeedPercent)
	}
}

// TestApplyCreatesDevice verifies Apply registers devices named by
// push messages that arrive before discovery.
func TestApplyCreatesDevice(t *testing.T) {
	r := NewRegistry()

	r.Apply(&StateDelta{
		DeviceID: "oven-1",
		Marker:   ReceiptMarker(time.Now().UTC()),
		LampOn:   boolPtr(true),
	})

	id, err := r.Get("oven-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if id.Generation != GenerationUnknown {
		t.Errorf("Generation = %q, want unknown before discovery", id.Generation)
	}
}

// TestApplyUpdatedAt verifies UpdatedAt advances only on real changes.
func TestApplyUpdatedAt(t *testing.T) {
	r := NewRegistry()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	current := t0
	r.now = func() time.Time { return current }

	r.Apply(&StateDelta{
		DeviceID: "oven-1",
		Marker:   VersionMarker(1, t0),
		LampOn:   boolPtr(true),
	})

	s, _ := r.Snapshot("oven-1")
	if !s.UpdatedAt.Equal(t0) {
		t.Errorf("UpdatedAt = %s, want %s", s.UpdatedAt, t0)
	}

	// Re-assert the same value later: no change, no timestamp bump.
	current = t0.Add(time.Minute)
	r.Apply(&StateDelta{
		DeviceID: "oven-1",
		Marker:   VersionMarker(2, current),
		LampOn:   boolPtr(true),
	})

	s, _ = r.Snapshot("oven-1")
	if !s.UpdatedAt.Equal(t0) {
		t.Errorf("UpdatedAt = %s, want unchanged %s", s.UpdatedAt, t0)
	}
}

// TestApplyConcurrentDevices verifies concurrent merges across many
// devices and goroutines leave every snapshot internally consistent.
func TestApplyConcurrentDevices(t *testing.T) {
	r := NewRegistry()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for d := 0; d < 4; d++ {
		deviceID := fmt.Sprintf("oven-%d", d)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(version int64) {
				defer wg.Done()
				speed := int(version)
				r.Apply(&StateDelta{
					DeviceID:        deviceID,
					Marker:          VersionMarker(version, now),
					FanSpeedPercent: &speed,
				})
			}(int64(w))
		}
	}
	wg.Wait()

	if r.Count() != 4 {
		t.Fatalf("Count() = %d, want 4", r.Count())
	}
	for d := 0; d < 4; d++ {
		s, err := r.Snapshot(fmt.Sprintf("oven-%d", d))
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		// Freshness guarantees the highest version's value survives.
		if s.FanSpeedPercent == nil || *s.FanSpeedPercent != 7 {
			t.Errorf("oven-%d FanSpeedPercent = %v, want 7", d, s.FanSpeedPercent)
		}
	}
}
