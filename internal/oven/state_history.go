package oven

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourcePush = "push"
	StateHistorySourcePoll = "poll"
)

// StateHistoryEntry represents a single recorded device state change.
//
// Each entry stores the full merged snapshot at the time the change was
// accepted. This provides a local audit trail even when the time-series
// database is unavailable.
type StateHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the stable cooker id.
	DeviceID string `json:"device_id"`

	// State is the JSON snapshot after the merge.
	State *DeviceSnapshot `json:"state"`

	// Source identifies how the change arrived (push, poll).
	Source string `json:"source"`

	// ChangedAt is the timestamp of the accepted merge (UTC).
	ChangedAt time.Time `json:"changed_at"`
}

// StateHistoryStore stores and retrieves device state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryStore interface {
	// RecordStateChange records a device state change.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Stable cooker id
	//   - snapshot: Merged snapshot to persist
	//   - source: Origin of the change (push, poll)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordStateChange(ctx context.Context, deviceID string, snapshot *DeviceSnapshot, source string) error

	// GetHistory returns recent state change history for the device.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Stable cooker id
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []StateHistoryEntry: Ordered newest-first history entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
