package oven

import "sync"

// ChangeFunc is an observer callback invoked with a deep-copied
// snapshot after a merge actually changed a device's state.
type ChangeFunc func(id DeviceIdentity, snapshot *DeviceSnapshot)

// Publisher fans merged state changes out to observers.
//
// Observers subscribe per device or globally. Callbacks are invoked
// only when a merge changed at least one field value, always with a
// deep copy of the snapshot, and never while any registry or publisher
// lock is held, so an observer may call back into the engine (including
// Read) without deadlocking.
//
// Callbacks for one device are invoked from the goroutine that applied
// the merge; a slow observer therefore backpressures that device's
// ingest path but never other devices'.
type Publisher struct {
	registry *Registry
	logger   Logger

	mu        sync.RWMutex
	byDevice  map[string][]ChangeFunc
	anyChange []ChangeFunc
}

// NewPublisher creates a publisher bound to a registry.
func NewPublisher(registry *Registry) *Publisher {
	return &Publisher{
		registry: registry,
		logger:   noopLogger{},
		byDevice: make(map[string][]ChangeFunc),
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Read returns a deep copy of the current snapshot for a device.
// Safe to call from within a change callback.
func (p *Publisher) Read(id string) (*DeviceSnapshot, error) {
	return p.registry.Snapshot(id)
}

// OnChanged registers a callback for changes to one device.
// Registration before the device is discovered is allowed.
func (p *Publisher) OnChanged(deviceID string, fn ChangeFunc) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byDevice[deviceID] = append(p.byDevice[deviceID], fn)
}

// OnAnyChange registers a callback for changes to any device.
func (p *Publisher) OnAnyChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anyChange = append(p.anyChange, fn)
}

// Notify delivers the device's current snapshot to its observers.
//
// The caller invokes this after Registry.Apply reported a change, with
// no engine locks held. The snapshot is copied once and shared across
// callbacks; callbacks must treat it as read-only or copy again.
func (p *Publisher) Notify(deviceID string) {
	identity, err := p.registry.Get(deviceID)
	if err != nil {
		p.logger.Warn("notify for unknown device", "device_id", deviceID)
		return
	}
	snapshot, err := p.registry.Snapshot(deviceID)
	if err != nil {
		return
	}

	p.mu.RLock()
	callbacks := make([]ChangeFunc, 0, len(p.byDevice[deviceID])+len(p.anyChange))
	callbacks = append(callbacks, p.byDevice[deviceID]...)
	callbacks = append(callbacks, p.anyChange...)
	p.mu.RUnlock()

	for _, fn := range callbacks {
		fn(identity, snapshot)
	}
}
