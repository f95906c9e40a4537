package anova

import "github.com/ovenlink/ovenlink/internal/oven"

// telemetryFields extracts the numeric snapshot fields worth plotting.
// Absent groups contribute nothing; an all-nil snapshot yields an empty
// map, which the telemetry writer treats as a no-op.
func telemetryFields(s *oven.DeviceSnapshot) map[string]interface{} {
	fields := make(map[string]interface{})

	if tb := s.TemperatureBulbs; tb != nil {
		if tb.Dry.Current != nil {
			fields["dry_current_c"] = *tb.Dry.Current
		}
		if tb.Dry.Setpoint != nil {
			fields["dry_setpoint_c"] = *tb.Dry.Setpoint
		}
		if tb.Wet.Current != nil {
			fields["wet_current_c"] = *tb.Wet.Current
		}
		if tb.Wet.Setpoint != nil {
			fields["wet_setpoint_c"] = *tb.Wet.Setpoint
		}
	}

	if p := s.Probe; p != nil {
		if p.Current != nil {
			fields["probe_current_c"] = *p.Current
		}
		if p.Setpoint != nil {
			fields["probe_setpoint_c"] = *p.Setpoint
		}
	}

	if st := s.Steam; st != nil {
		if st.RelativeHumidityCurrent != nil {
			fields["humidity_percent"] = *st.RelativeHumidityCurrent
		}
		if st.RelativeHumiditySetpoint != nil {
			fields["humidity_setpoint_percent"] = *st.RelativeHumiditySetpoint
		}
	}

	if s.FanSpeedPercent != nil {
		fields["fan_speed_percent"] = float64(*s.FanSpeedPercent)
	}

	if t := s.Timer; t != nil && t.RemainingSeconds != nil {
		fields["timer_remaining_s"] = float64(*t.RemainingSeconds)
	}

	return fields
}
