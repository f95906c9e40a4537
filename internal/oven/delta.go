package oven

import (
	"fmt"
	"time"
)

// FieldGroup names a top-level region of the snapshot that is merged
// and freshness-tracked as a unit.
type FieldGroup string

const (
	GroupMode              FieldGroup = "mode"
	GroupCoarseTemperature FieldGroup = "coarse_temperature"
	GroupTemperatureBulbs  FieldGroup = "temperature_bulbs"
	GroupProbe             FieldGroup = "probe"
	GroupSteam             FieldGroup = "steam"
	GroupTimer             FieldGroup = "timer"
	GroupFan               FieldGroup = "fan"
	GroupVent              FieldGroup = "vent"
	GroupDoor              FieldGroup = "door"
	GroupWaterTank         FieldGroup = "water_tank"
	GroupHeatingElements   FieldGroup = "heating_elements"
	GroupLamp              FieldGroup = "lamp"
	GroupSystemInfo        FieldGroup = "system_info"
	GroupActiveCook        FieldGroup = "active_cook"
)

// Marker is a freshness marker used to arbitrate between deltas that
// touch the same field group.
//
// A marker is either numbered (the message carried a version integer)
// or unnumbered (stamped with receipt wall-clock time). Every numbered
// marker orders strictly above every unnumbered one, regardless of the
// receipt time.
type Marker struct {
	// Version is the message version when HasVersion is true.
	Version int64

	// HasVersion reports whether Version was present on the wire.
	HasVersion bool

	// ReceivedAt is the wall-clock receipt time, used for ordering
	// between unnumbered markers.
	ReceivedAt time.Time
}

// VersionMarker builds a numbered marker from a message version.
func VersionMarker(version int64, receivedAt time.Time) Marker {
	return Marker{Version: version, HasVersion: true, ReceivedAt: receivedAt}
}

// ReceiptMarker builds an unnumbered marker from a receipt time.
func ReceiptMarker(receivedAt time.Time) Marker {
	return Marker{ReceivedAt: receivedAt}
}

// Compare orders two markers: -1 if m is staler than other, 0 if equal,
// +1 if m is fresher. Numbered markers always order above unnumbered.
func (m Marker) Compare(other Marker) int {
	switch {
	case m.HasVersion && !other.HasVersion:
		return 1
	case !m.HasVersion && other.HasVersion:
		return -1
	case m.HasVersion:
		switch {
		case m.Version < other.Version:
			return -1
		case m.Version > other.Version:
			return 1
		default:
			return 0
		}
	default:
		switch {
		case m.ReceivedAt.Before(other.ReceivedAt):
			return -1
		case m.ReceivedAt.After(other.ReceivedAt):
			return 1
		default:
			return 0
		}
	}
}

// Before reports whether m is strictly staler than other.
func (m Marker) Before(other Marker) bool {
	return m.Compare(other) < 0
}

// String renders the marker for logging.
func (m Marker) String() string {
	if m.HasVersion {
		return fmt.Sprintf("v%d", m.Version)
	}
	return "t" + m.ReceivedAt.UTC().Format(time.RFC3339Nano)
}

// StateDelta is a sparse, partial description of state changes extracted
// from one inbound message.
//
// Each group pointer is nil when the message did not mention that group.
// Deltas are ephemeral: constructed by the Normalizer, consumed by the
// merge engine, discarded.
type StateDelta struct {
	// DeviceID is the id the message addressed.
	DeviceID string

	// Marker is this delta's freshness marker.
	Marker Marker

	// RawMode is the wire mode string when HasRawMode is true.
	// The canonical operating mode is derived at merge time.
	RawMode    string
	HasRawMode bool

	// Generation is set when the message carried a device type
	// (discovery payloads do, push state updates usually do not).
	Generation HardwareGeneration

	CoarseTemperature *CoarseTemperature
	TemperatureBulbs  *TemperatureBulbs
	Probe             *Probe
	Steam             *Steam
	Timer             *Timer
	FanSpeedPercent   *int
	VentOpen          *bool
	DoorClosed        *bool
	WaterTankEmpty    *bool
	HeatingElements   *HeatingElements
	LampOn            *bool
	SystemInfo        *SystemInfo
	ActiveCook        *ActiveCook
}

// Groups returns the field groups present in this delta, in a fixed order.
func (d *StateDelta) Groups() []FieldGroup {
	var groups []FieldGroup
	if d.HasRawMode {
		groups = append(groups, GroupMode)
	}
	if d.CoarseTemperature != nil {
		groups = append(groups, GroupCoarseTemperature)
	}
	if d.TemperatureBulbs != nil {
		groups = append(groups, GroupTemperatureBulbs)
	}
	if d.Probe != nil {
		groups = append(groups, GroupProbe)
	}
	if d.Steam != nil {
		groups = append(groups, GroupSteam)
	}
	if d.Timer != nil {
		groups = append(groups, GroupTimer)
	}
	if d.FanSpeedPercent != nil {
		groups = append(groups, GroupFan)
	}
	if d.VentOpen != nil {
		groups = append(groups, GroupVent)
	}
	if d.DoorClosed != nil {
		groups = append(groups, GroupDoor)
	}
	if d.WaterTankEmpty != nil {
		groups = append(groups, GroupWaterTank)
	}
	if d.HeatingElements != nil {
		groups = append(groups, GroupHeatingElements)
	}
	if d.LampOn != nil {
		groups = append(groups, GroupLamp)
	}
	if d.SystemInfo != nil {
		groups = append(groups, GroupSystemInfo)
	}
	if d.ActiveCook != nil {
		groups = append(groups, GroupActiveCook)
	}
	return groups
}

// Empty reports whether the delta carries no field groups at all.
// Empty deltas still advance nothing and are safe to drop.
func (d *StateDelta) Empty() bool {
	return len(d.Groups()) == 0
}
