// Package anova (bridges) implements the update scheduler that drives
// the oven state engine from the cloud.
//
// The scheduler owns a per-session state machine:
//
//	UNINITIALIZED → CONNECTING → STEADY
//
// In CONNECTING the push channel is dialed, the cloud's discovery
// event seeds the device registry, and the recipe library is loaded
// best-effort. In STEADY, push messages apply immediately — each one
// producing at most one merge and one notification — while a poll
// timer re-confirms channel liveness at a fixed interval. A dead
// channel is re-dialed once per poll tick, never in a tight loop, and
// a successful reconnect is followed by a fresh discovery round.
//
// Every accepted merge fans out to the snapshot publisher, the MQTT
// state topic (retained), the InfluxDB telemetry writer, and the
// SQLite state history, each best-effort and independent.
//
// A malformed message for one device has zero effect on other devices:
// normalization and merge errors drop only the triggering message.
package anova
