package oven

import (
	"sync"
	"time"
)

// Logger defines the logging interface used by the oven engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry is one device's registry slot: its immutable identity, its
// mutable snapshot, and the per-field-group freshness markers.
//
// mu serializes all merges for this device. The freshness
// comparison-and-write must be atomic with respect to concurrent
// deltas for the same device; deltas for different devices proceed
// concurrently on their own entries.
type entry struct {
	mu       sync.Mutex
	identity DeviceIdentity
	snapshot *DeviceSnapshot
	markers  map[FieldGroup]Marker
}

// Registry holds the authoritative set of known device identities and
// their latest merged snapshots.
//
// Devices are created by discovery (or the first push message naming
// them) and never evicted: once seen, an identity and its snapshot
// live for the process session.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*entry
	logger  Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*entry),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the registry and its merge path.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// GetOrCreate returns the identity for a device id, creating the
// identity and an empty snapshot atomically on first sight.
//
// A non-empty generation upgrades a previously unknown generation
// (push messages rarely carry it; discovery payloads do). The identity
// and snapshot instances are never recreated for a given id within a
// session.
func (r *Registry) GetOrCreate(id string, generation HardwareGeneration) (DeviceIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[id]
	if !ok {
		e = &entry{
			identity: DeviceIdentity{
				ID:           id,
				Generation:   generation,
				DiscoveredAt: r.now().UTC(),
			},
			snapshot: &DeviceSnapshot{},
			markers:  make(map[FieldGroup]Marker),
		}
		r.devices[id] = e
		r.logger.Info("device registered", "device_id", id, "generation", string(generation))
		return e.identity, true
	}

	if e.identity.Generation == GenerationUnknown && generation != GenerationUnknown {
		e.identity.Generation = generation
		r.logger.Debug("device generation resolved", "device_id", id, "generation", string(generation))
	}
	return e.identity, false
}

// Get returns the identity for a known device id.
func (r *Registry) Get(id string) (DeviceIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.devices[id]
	if !ok {
		return DeviceIdentity{}, ErrDeviceNotFound
	}
	return e.identity, nil
}

// List returns all known device identities.
func (r *Registry) List() []DeviceIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]DeviceIdentity, 0, len(r.devices))
	for _, e := range r.devices {
		identities = append(identities, e.identity)
	}
	return identities
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Snapshot returns a deep copy of the current snapshot for a device.
//
// The copy is taken under the device's merge serialization, so a
// reader always observes the result of zero or more complete merges,
// never a partially-applied one.
func (r *Registry) Snapshot(id string) (*DeviceSnapshot, error) {
	r.mu.RLock()
	e, ok := r.devices[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrDeviceNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.DeepCopy(), nil
}

// Apply merges a delta into the device's snapshot, creating the device
// if it has never been seen.
//
// The merge runs under the device's serialization lock; Apply returns
// true iff at least one field's value actually changed. Callers must
// not invoke observer callbacks from within this method's dynamic
// extent while holding other engine locks (the registry itself holds
// no locks when Apply returns).
func (r *Registry) Apply(delta *StateDelta) bool {
	r.GetOrCreate(delta.DeviceID, delta.Generation)

	r.mu.RLock()
	e := r.devices[delta.DeviceID]
	r.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	changed := mergeDelta(e.snapshot, e.markers, delta, r.logger)
	if changed {
		e.snapshot.UpdatedAt = r.now().UTC()
	}
	return changed
}
