package recipes

import (
	"fmt"
	"strings"

	"github.com/ovenlink/ovenlink/internal/oven"
)

// Temperature limits in Celsius. The wet bulb saturates at boiling; the
// dry bulb ceiling drops when only the bottom element heats, and the
// bottom-only ceiling differs by hardware generation.
const (
	WetBulbMin = 25.0
	WetBulbMax = 100.0

	DryBulbMin = 25.0
	DryBulbMax = 250.0

	DryBulbBottomOnlyV1Max = 180.0
	DryBulbBottomOnlyV2Max = 230.0

	ProbeMin = 1.0
	ProbeMax = 100.0
)

// Recipe is a named sequence of cook stages, optionally pinned to one
// hardware generation.
type Recipe struct {
	ID          string  `yaml:"-" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description,omitempty"`
	OvenVersion string  `yaml:"oven_version" json:"oven_version,omitempty"`
	Stages      []Stage `yaml:"stages" json:"stages"`
}

// Stage is one step of a recipe as it appears in the YAML library.
type Stage struct {
	Name               string           `yaml:"name" json:"name"`
	Temperature        StageTemperature `yaml:"temperature" json:"temperature"`
	Timer              *StageTimer      `yaml:"timer" json:"timer,omitempty"`
	HeatingElements    map[string]bool  `yaml:"heating_elements" json:"heating_elements,omitempty"`
	FanSpeed           *int             `yaml:"fan_speed" json:"fan_speed,omitempty"`
	Steam              *StageSteam      `yaml:"steam" json:"steam,omitempty"`
	RackPosition       *int             `yaml:"rack_position" json:"rack_position,omitempty"`
	VentOpen           bool             `yaml:"vent_open" json:"vent_open"`
	UserActionRequired bool             `yaml:"user_action_required" json:"user_action_required"`
	Description        string           `yaml:"description" json:"description,omitempty"`
}

// StageTemperature is the target bulb temperature for a stage.
type StageTemperature struct {
	// Value is the setpoint in the unit given by TemperatureUnit.
	Value float64 `yaml:"value" json:"value"`

	// TemperatureUnit is "C" or "F". Default: "C".
	TemperatureUnit string `yaml:"temperature_unit" json:"temperature_unit,omitempty"`

	// Mode selects the regulating bulb: "dry" or "wet". Default: "dry".
	Mode string `yaml:"mode" json:"mode,omitempty"`
}

// Celsius returns the setpoint converted to Celsius.
func (t StageTemperature) Celsius() float64 {
	if strings.EqualFold(t.TemperatureUnit, "F") {
		return oven.FahrenheitToCelsius(t.Value)
	}
	return t.Value
}

// StageTimer is an optional per-stage countdown.
type StageTimer struct {
	Seconds int `yaml:"seconds" json:"seconds"`
}

// StageSteam selects one of the two steam control modes. Exactly one
// field should be set; which one determines the mode on the wire.
type StageSteam struct {
	RelativeHumidity *float64 `yaml:"relative_humidity" json:"relative_humidity,omitempty"`
	SteamPercentage  *float64 `yaml:"steam_percentage" json:"steam_percentage,omitempty"`
}

// Info is the summary shape served by the recipe listing endpoint.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Stages      int    `json:"stages"`
	OvenVersion string `json:"oven_version"`
}

// Info returns the recipe's listing summary.
func (r *Recipe) Info() Info {
	version := r.OvenVersion
	if version == "" {
		version = "any"
	}
	return Info{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Stages:      len(r.Stages),
		OvenVersion: version,
	}
}

// fanSpeed returns the stage's fan speed, defaulting to full.
func (s *Stage) fanSpeed() int {
	if s.FanSpeed != nil {
		return *s.FanSpeed
	}
	return 100
}

// rackPosition returns the stage's rack position, defaulting to middle.
func (s *Stage) rackPosition() int {
	if s.RackPosition != nil {
		return *s.RackPosition
	}
	return 3
}

// elements returns the heating element switches, defaulting to
// rear-only (the convection configuration).
func (s *Stage) elements() (top, bottom, rear bool) {
	if s.HeatingElements == nil {
		return false, false, true
	}
	return s.HeatingElements["top"], s.HeatingElements["bottom"], s.HeatingElements["rear"]
}

// bulbMode returns the regulating bulb, defaulting to dry.
func (s *Stage) bulbMode() string {
	if strings.EqualFold(s.Temperature.Mode, "wet") {
		return "wet"
	}
	return "dry"
}

// Validate checks the recipe against hardware limits for the given
// generation. An unknown generation validates against the stricter v1
// bottom-only ceiling.
//
// Returns:
//   - error: Joined description of every violation, or nil if valid
func (r *Recipe) Validate(generation oven.HardwareGeneration) error {
	var errs []string

	if r.Name == "" {
		errs = append(errs, "name is required")
	}
	if len(r.Stages) == 0 {
		errs = append(errs, "at least one stage is required")
	}
	if r.OvenVersion != "" {
		want, ok := oven.ParseGeneration(r.OvenVersion)
		if !ok {
			errs = append(errs, fmt.Sprintf("oven_version %q is invalid (use v1 or v2)", r.OvenVersion))
		} else if generation != oven.GenerationUnknown && want != generation {
			errs = append(errs, fmt.Sprintf("recipe targets %s but device is %s", want, generation))
		}
	}

	for i := range r.Stages {
		errs = append(errs, r.Stages[i].validate(i, generation)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("recipe %q: %s", r.ID, strings.Join(errs, "; "))
	}
	return nil
}

// validate checks one stage. Index is used only for error messages.
func (s *Stage) validate(idx int, generation oven.HardwareGeneration) []string {
	var errs []string
	prefix := fmt.Sprintf("stages[%d]", idx)

	if unit := s.Temperature.TemperatureUnit; unit != "" &&
		!strings.EqualFold(unit, "C") && !strings.EqualFold(unit, "F") {
		errs = append(errs, fmt.Sprintf("%s.temperature.temperature_unit %q is invalid (use C or F)", prefix, unit))
	}
	if mode := s.Temperature.Mode; mode != "" &&
		!strings.EqualFold(mode, "dry") && !strings.EqualFold(mode, "wet") {
		errs = append(errs, fmt.Sprintf("%s.temperature.mode %q is invalid (use dry or wet)", prefix, mode))
	}

	top, bottom, rear := s.elements()
	if !top && !bottom && !rear {
		errs = append(errs, prefix+": at least one heating element must be enabled")
	}
	if top && bottom && rear {
		errs = append(errs, prefix+": all three heating elements cannot be enabled simultaneously")
	}

	celsius := s.Temperature.Celsius()
	if s.bulbMode() == "wet" {
		if celsius < WetBulbMin || celsius > WetBulbMax {
			errs = append(errs, fmt.Sprintf("%s: wet bulb %.1f°C outside %.0f-%.0f°C", prefix, celsius, WetBulbMin, WetBulbMax))
		}
	} else {
		max := DryBulbMax
		if bottom && !top && !rear {
			max = DryBulbBottomOnlyV2Max
			if generation != oven.GenerationV2 {
				max = DryBulbBottomOnlyV1Max
			}
		}
		if celsius < DryBulbMin || celsius > max {
			errs = append(errs, fmt.Sprintf("%s: dry bulb %.1f°C outside %.0f-%.0f°C", prefix, celsius, DryBulbMin, max))
		}
	}

	if fan := s.fanSpeed(); fan < 0 || fan > 100 {
		errs = append(errs, fmt.Sprintf("%s.fan_speed %d outside 0-100", prefix, fan))
	}
	if rack := s.rackPosition(); rack < 1 || rack > 7 {
		errs = append(errs, fmt.Sprintf("%s.rack_position %d outside 1-7", prefix, rack))
	}
	if s.Timer != nil && s.Timer.Seconds < 0 {
		errs = append(errs, prefix+".timer.seconds must not be negative")
	}

	if st := s.Steam; st != nil {
		if st.RelativeHumidity == nil && st.SteamPercentage == nil {
			errs = append(errs, prefix+".steam requires relative_humidity or steam_percentage")
		}
		if st.RelativeHumidity != nil && (*st.RelativeHumidity < 0 || *st.RelativeHumidity > 100) {
			errs = append(errs, fmt.Sprintf("%s.steam.relative_humidity %.1f outside 0-100", prefix, *st.RelativeHumidity))
		}
		if st.SteamPercentage != nil && (*st.SteamPercentage < 0 || *st.SteamPercentage > 100) {
			errs = append(errs, fmt.Sprintf("%s.steam.steam_percentage %.1f outside 0-100", prefix, *st.SteamPercentage))
		}
	}

	return errs
}

// CookStages converts the recipe to the wire payload of a start-cook
// command: one map per stage in the node schema the oven expects.
// Callers should Validate first; conversion itself never fails.
func (r *Recipe) CookStages() []map[string]interface{} {
	stages := make([]map[string]interface{}, 0, len(r.Stages))
	for i := range r.Stages {
		stages = append(stages, r.Stages[i].payload())
	}
	return stages
}

// payload builds one stage of a start-cook command.
func (s *Stage) payload() map[string]interface{} {
	mode := s.bulbMode()
	celsius := s.Temperature.Celsius()
	top, bottom, rear := s.elements()

	stage := map[string]interface{}{
		"title": s.Name,
		"temperatureBulbs": map[string]interface{}{
			"mode": mode,
			mode: map[string]interface{}{
				"setpoint": map[string]interface{}{
					"celsius":    celsius,
					"fahrenheit": oven.CelsiusToFahrenheit(celsius),
				},
			},
		},
		"heatingElements": map[string]interface{}{
			"top":    map[string]interface{}{"on": top},
			"bottom": map[string]interface{}{"on": bottom},
			"rear":   map[string]interface{}{"on": rear},
		},
		"fan":          map[string]interface{}{"speed": s.fanSpeed()},
		"vent":         map[string]interface{}{"open": s.VentOpen},
		"rackPosition": s.rackPosition(),
	}

	if s.Description != "" {
		stage["description"] = s.Description
	}
	if s.UserActionRequired {
		stage["userActionRequired"] = true
	}
	if s.Timer != nil {
		stage["timer"] = map[string]interface{}{"initial": s.Timer.Seconds}
	}
	if st := s.Steam; st != nil {
		steam := map[string]interface{}{}
		switch {
		case st.RelativeHumidity != nil:
			steam["mode"] = "relative-humidity"
			steam["relativeHumidity"] = map[string]interface{}{"setpoint": *st.RelativeHumidity}
		case st.SteamPercentage != nil:
			steam["mode"] = "steam-percentage"
			steam["steamPercentage"] = map[string]interface{}{"setpoint": *st.SteamPercentage}
		}
		stage["steamGenerators"] = steam
	}

	return stage
}
