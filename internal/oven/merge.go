package oven

import (
	"reflect"
	"strings"
)

// rawModeTable maps wire mode strings to canonical modes.
// Both hardware generations' spellings are listed; lookups are
// lowercase.
var rawModeTable = map[string]Mode{
	"cook":       ModeCooking,
	"cooking":    ModeCooking,
	"preheat":    ModePreheating,
	"preheating": ModePreheating,
	"idle":       ModeIdle,
	"paused":     ModePaused,
	"completed":  ModeCompleted,
	"error":      ModeError,
}

// MapRawMode derives the canonical operating mode from a wire mode
// string. An unrecognized string logs a warning and resolves to idle
// rather than leaving the field stale or failing the merge.
func MapRawMode(raw string, logger Logger) Mode {
	if mode, ok := rawModeTable[strings.ToLower(raw)]; ok {
		return mode
	}
	if logger != nil {
		logger.Warn("unrecognized raw mode, falling back to idle", "raw_mode", raw)
	}
	return ModeIdle
}

// mergeDelta applies a delta onto a snapshot, field group by field
// group, honoring freshness and partiality rules.
//
// For each group present in the delta, the delta's marker is compared
// against the group's last-applied marker. The group is applied when
// the delta is at least as fresh (ties accept: last writer wins) and
// skipped when strictly staler. Markers are tracked per group, not
// globally, because push and poll deltas may interleave out of order
// on disjoint groups.
//
// Groups absent from the delta are untouched: the merge is purely
// additive/overwriting per present group, never subtractive.
//
// Returns true iff at least one field's value actually differed after
// the merge, so redundant re-assertions of known values produce no
// downstream notifications.
//
// Callers must hold the device's serialization lock.
func mergeDelta(s *DeviceSnapshot, markers map[FieldGroup]Marker, d *StateDelta, logger Logger) bool {
	changed := false

	accept := func(group FieldGroup) bool {
		prev, seen := markers[group]
		if seen && d.Marker.Before(prev) {
			logger.Debug("stale delta group rejected",
				"device_id", d.DeviceID,
				"group", string(group),
				"delta_marker", d.Marker.String(),
				"group_marker", prev.String(),
			)
			return false
		}
		markers[group] = d.Marker
		return true
	}

	if d.HasRawMode && accept(GroupMode) {
		mode := MapRawMode(d.RawMode, logger)
		if s.OperatingMode == nil || *s.OperatingMode != mode {
			s.OperatingMode = &mode
			changed = true
		}
	}

	if d.CoarseTemperature != nil && accept(GroupCoarseTemperature) {
		if !reflect.DeepEqual(s.CoarseTemperature, d.CoarseTemperature) {
			ct := d.CoarseTemperature.copy()
			s.CoarseTemperature = &ct
			changed = true
		}
	}

	if d.TemperatureBulbs != nil && accept(GroupTemperatureBulbs) {
		if !reflect.DeepEqual(s.TemperatureBulbs, d.TemperatureBulbs) {
			tb := d.TemperatureBulbs.copy()
			s.TemperatureBulbs = &tb
			changed = true
		}
	}

	if d.Probe != nil && accept(GroupProbe) {
		if !reflect.DeepEqual(s.Probe, d.Probe) {
			p := d.Probe.copy()
			s.Probe = &p
			changed = true
		}
	}

	if d.Steam != nil && accept(GroupSteam) {
		if !reflect.DeepEqual(s.Steam, d.Steam) {
			st := d.Steam.copy()
			s.Steam = &st
			changed = true
		}
	}

	if d.Timer != nil && accept(GroupTimer) {
		if !reflect.DeepEqual(s.Timer, d.Timer) {
			t := d.Timer.copy()
			s.Timer = &t
			changed = true
		}
	}

	if d.FanSpeedPercent != nil && accept(GroupFan) {
		if s.FanSpeedPercent == nil || *s.FanSpeedPercent != *d.FanSpeedPercent {
			s.FanSpeedPercent = copyPtr(d.FanSpeedPercent)
			changed = true
		}
	}

	if d.VentOpen != nil && accept(GroupVent) {
		if s.VentOpen == nil || *s.VentOpen != *d.VentOpen {
			s.VentOpen = copyPtr(d.VentOpen)
			changed = true
		}
	}

	if d.DoorClosed != nil && accept(GroupDoor) {
		if s.DoorClosed == nil || *s.DoorClosed != *d.DoorClosed {
			s.DoorClosed = copyPtr(d.DoorClosed)
			changed = true
		}
	}

	if d.WaterTankEmpty != nil && accept(GroupWaterTank) {
		if s.WaterTankEmpty == nil || *s.WaterTankEmpty != *d.WaterTankEmpty {
			s.WaterTankEmpty = copyPtr(d.WaterTankEmpty)
			changed = true
		}
	}

	if d.HeatingElements != nil && accept(GroupHeatingElements) {
		if !reflect.DeepEqual(s.HeatingElements, d.HeatingElements) {
			he := d.HeatingElements.copy()
			s.HeatingElements = &he
			changed = true
		}
	}

	if d.LampOn != nil && accept(GroupLamp) {
		if s.LampOn == nil || *s.LampOn != *d.LampOn {
			s.LampOn = copyPtr(d.LampOn)
			changed = true
		}
	}

	if d.SystemInfo != nil && accept(GroupSystemInfo) {
		if !reflect.DeepEqual(s.SystemInfo, d.SystemInfo) {
			si := d.SystemInfo.copy()
			s.SystemInfo = &si
			changed = true
		}
	}

	if d.ActiveCook != nil && accept(GroupActiveCook) {
		if !reflect.DeepEqual(s.ActiveCook, d.ActiveCook) {
			ac := *d.ActiveCook
			s.ActiveCook = &ac
			changed = true
		}
	}

	return changed
}
