package oven

import "time"

// HardwareGeneration identifies the oven hardware revision.
// It determines which wire dialect the device speaks and which
// nodes (probe, second bulb) physically exist.
type HardwareGeneration string

const (
	// GenerationV1 is the first hardware revision (nested wire dialect).
	GenerationV1 HardwareGeneration = "v1"

	// GenerationV2 is the second hardware revision (flat wire dialect).
	GenerationV2 HardwareGeneration = "v2"

	// GenerationUnknown is used until discovery reports a device type.
	GenerationUnknown HardwareGeneration = ""
)

// ParseGeneration maps a discovery payload device type to a HardwareGeneration.
// Both short ("v1") and long ("oven_v1") forms appear on the wire.
func ParseGeneration(raw string) (HardwareGeneration, bool) {
	switch raw {
	case "v1", "oven_v1":
		return GenerationV1, true
	case "v2", "oven_v2":
		return GenerationV2, true
	default:
		return GenerationUnknown, false
	}
}

// Mode is the canonical operating mode of the oven.
// It is derived from raw wire mode strings, never copied verbatim.
type Mode string

const (
	ModeIdle       Mode = "idle"
	ModePreheating Mode = "preheating"
	ModeCooking    Mode = "cooking"
	ModePaused     Mode = "paused"
	ModeCompleted  Mode = "completed"
	ModeError      Mode = "error"
)

// BulbMode selects which temperature bulb drives regulation.
type BulbMode string

const (
	BulbModeDry BulbMode = "dry"
	BulbModeWet BulbMode = "wet"
)

// SteamMode is the steam generator regulation mode.
type SteamMode string

const (
	SteamModeIdle             SteamMode = "idle"
	SteamModeRelativeHumidity SteamMode = "relative-humidity"
	SteamModePercentage       SteamMode = "steam-percentage"
)

// TimerMode is the cook timer state.
type TimerMode string

const (
	TimerModeStopped TimerMode = "stopped"
	TimerModeRunning TimerMode = "running"
	TimerModePaused  TimerMode = "paused"
)

// DeviceIdentity is the immutable identity of one physical oven.
// It is assigned at discovery time and never reassigned for the
// life of the process.
type DeviceIdentity struct {
	// ID is the stable cooker id reported by the cloud.
	ID string `json:"id"`

	// Generation is the hardware revision, unknown until discovery
	// reports a device type.
	Generation HardwareGeneration `json:"generation"`

	// DiscoveredAt is when this device was first seen.
	DiscoveredAt time.Time `json:"discovered_at"`
}

// BulbReading holds the readings for one temperature bulb.
// Temperatures are canonical Celsius; nil means never observed.
type BulbReading struct {
	Current  *float64 `json:"current,omitempty"`
	Setpoint *float64 `json:"setpoint,omitempty"`

	// Dosed reports whether the wet bulb wick has been dosed.
	// Only the wet bulb carries this flag.
	Dosed *bool `json:"dosed,omitempty"`

	// Faulted reports a sensor fault flag for this bulb.
	Faulted *bool `json:"faulted,omitempty"`
}

// TemperatureBulbs is the dry/wet bulb field group.
type TemperatureBulbs struct {
	// ActiveMode selects which bulb drives temperature regulation.
	// nil means the wire never stated a mode; it is not guessed.
	ActiveMode *BulbMode   `json:"active_mode,omitempty"`
	Dry        BulbReading `json:"dry"`
	Wet        BulbReading `json:"wet"`
}

// CoarseTemperature is the device-level current/target pair carried by
// discovery payloads. It is deliberately separate from the bulb
// readings: a coarse reading names no bulb, so folding it into either
// would be a guess.
type CoarseTemperature struct {
	Current *float64 `json:"current,omitempty"`
	Target  *float64 `json:"target,omitempty"`
}

// Probe is the food temperature probe field group.
// Physically absent on some hardware generations.
type Probe struct {
	Connected *bool    `json:"connected,omitempty"`
	Current   *float64 `json:"current,omitempty"`
	Setpoint  *float64 `json:"setpoint,omitempty"`
}

// Steam is the steam generator field group.
type Steam struct {
	Mode SteamMode `json:"mode"`

	// RelativeHumidityCurrent is the measured humidity percentage.
	RelativeHumidityCurrent *float64 `json:"relative_humidity_current,omitempty"`

	// RelativeHumiditySetpoint is set when Mode is relative-humidity.
	RelativeHumiditySetpoint *float64 `json:"relative_humidity_setpoint,omitempty"`

	// PercentageSetpoint is set when Mode is steam-percentage.
	PercentageSetpoint *float64 `json:"percentage_setpoint,omitempty"`

	// Faulted reports a generator component fault.
	Faulted *bool `json:"faulted,omitempty"`
}

// Timer is the cook timer field group. Durations are seconds.
type Timer struct {
	Mode             TimerMode `json:"mode"`
	InitialSeconds   *int      `json:"initial_seconds,omitempty"`
	RemainingSeconds *int      `json:"remaining_seconds,omitempty"`
}

// HeatingElement is one of the three oven heating elements.
type HeatingElement struct {
	On     *bool `json:"on,omitempty"`
	Watts  *int  `json:"watts,omitempty"`
	Failed *bool `json:"failed,omitempty"`
}

// HeatingElements is the heating element field group.
type HeatingElements struct {
	Top    HeatingElement `json:"top"`
	Bottom HeatingElement `json:"bottom"`
	Rear   HeatingElement `json:"rear"`
}

// SystemInfo is the firmware/connectivity field group.
type SystemInfo struct {
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	HardwareVersion string     `json:"hardware_version,omitempty"`
	Online          *bool      `json:"online,omitempty"`
	LastConnected   *time.Time `json:"last_connected,omitempty"`
}

// ActiveCook describes the cook program currently running, if any.
type ActiveCook struct {
	Name       string `json:"name,omitempty"`
	StageIndex int    `json:"stage_index"`
	StageCount int    `json:"stage_count"`
}

// DeviceSnapshot is the authoritative best-known state for one device.
//
// Every field group is independently nullable: nil means the group has
// never been observed on the wire. A set group holds the most recent
// value accepted by the merge engine for that group specifically;
// groups are merged independently, never as whole-object replacements.
//
// Snapshots are mutated in place by the merge engine only, under the
// registry's per-device serialization. Readers always receive deep
// copies.
type DeviceSnapshot struct {
	OperatingMode     *Mode              `json:"operating_mode,omitempty"`
	CoarseTemperature *CoarseTemperature `json:"coarse_temperature,omitempty"`
	TemperatureBulbs  *TemperatureBulbs  `json:"temperature_bulbs,omitempty"`
	Probe             *Probe             `json:"probe,omitempty"`
	Steam             *Steam             `json:"steam,omitempty"`
	Timer             *Timer             `json:"timer,omitempty"`
	FanSpeedPercent   *int               `json:"fan_speed_percent,omitempty"`
	VentOpen          *bool              `json:"vent_open,omitempty"`
	DoorClosed        *bool              `json:"door_closed,omitempty"`
	WaterTankEmpty    *bool              `json:"water_tank_empty,omitempty"`
	HeatingElements   *HeatingElements   `json:"heating_elements,omitempty"`
	LampOn            *bool              `json:"lamp_on,omitempty"`
	SystemInfo        *SystemInfo        `json:"system_info,omitempty"`
	ActiveCook        *ActiveCook        `json:"active_cook,omitempty"`

	// UpdatedAt is the wall-clock time of the last accepted merge.
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the snapshot.
// All pointer field groups are cloned so modifications to the copy
// do not affect the original. This is essential for reader isolation.
func (s *DeviceSnapshot) DeepCopy() *DeviceSnapshot {
	if s == nil {
		return nil
	}

	cpy := *s // Shallow copy of value fields

	cpy.OperatingMode = copyPtr(s.OperatingMode)
	cpy.FanSpeedPercent = copyPtr(s.FanSpeedPercent)
	cpy.VentOpen = copyPtr(s.VentOpen)
	cpy.DoorClosed = copyPtr(s.DoorClosed)
	cpy.WaterTankEmpty = copyPtr(s.WaterTankEmpty)
	cpy.LampOn = copyPtr(s.LampOn)

	if s.CoarseTemperature != nil {
		ct := s.CoarseTemperature.copy()
		cpy.CoarseTemperature = &ct
	}
	if s.TemperatureBulbs != nil {
		tb := s.TemperatureBulbs.copy()
		cpy.TemperatureBulbs = &tb
	}
	if s.Probe != nil {
		p := s.Probe.copy()
		cpy.Probe = &p
	}
	if s.Steam != nil {
		st := s.Steam.copy()
		cpy.Steam = &st
	}
	if s.Timer != nil {
		t := s.Timer.copy()
		cpy.Timer = &t
	}
	if s.HeatingElements != nil {
		he := s.HeatingElements.copy()
		cpy.HeatingElements = &he
	}
	if s.SystemInfo != nil {
		si := s.SystemInfo.copy()
		cpy.SystemInfo = &si
	}
	if s.ActiveCook != nil {
		ac := *s.ActiveCook
		cpy.ActiveCook = &ac
	}

	return &cpy
}

func (c CoarseTemperature) copy() CoarseTemperature {
	c.Current = copyPtr(c.Current)
	c.Target = copyPtr(c.Target)
	return c
}

func (t TemperatureBulbs) copy() TemperatureBulbs {
	t.ActiveMode = copyPtr(t.ActiveMode)
	t.Dry = t.Dry.copy()
	t.Wet = t.Wet.copy()
	return t
}

func (b BulbReading) copy() BulbReading {
	b.Current = copyPtr(b.Current)
	b.Setpoint = copyPtr(b.Setpoint)
	b.Dosed = copyPtr(b.Dosed)
	b.Faulted = copyPtr(b.Faulted)
	return b
}

func (p Probe) copy() Probe {
	p.Connected = copyPtr(p.Connected)
	p.Current = copyPtr(p.Current)
	p.Setpoint = copyPtr(p.Setpoint)
	return p
}

func (s Steam) copy() Steam {
	s.RelativeHumidityCurrent = copyPtr(s.RelativeHumidityCurrent)
	s.RelativeHumiditySetpoint = copyPtr(s.RelativeHumiditySetpoint)
	s.PercentageSetpoint = copyPtr(s.PercentageSetpoint)
	s.Faulted = copyPtr(s.Faulted)
	return s
}

func (t Timer) copy() Timer {
	t.InitialSeconds = copyPtr(t.InitialSeconds)
	t.RemainingSeconds = copyPtr(t.RemainingSeconds)
	return t
}

func (h HeatingElements) copy() HeatingElements {
	h.Top = h.Top.copy()
	h.Bottom = h.Bottom.copy()
	h.Rear = h.Rear.copy()
	return h
}

func (e HeatingElement) copy() HeatingElement {
	e.On = copyPtr(e.On)
	e.Watts = copyPtr(e.Watts)
	e.Failed = copyPtr(e.Failed)
	return e
}

func (s SystemInfo) copy() SystemInfo {
	s.Online = copyPtr(s.Online)
	s.LastConnected = copyPtr(s.LastConnected)
	return s
}

// copyPtr clones a pointer to a value type. nil stays nil.
func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CelsiusToFahrenheit converts a canonical Celsius reading for display.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// FahrenheitToCelsius converts a Fahrenheit wire value to canonical Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}
