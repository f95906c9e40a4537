package mqtt

import "fmt"

// Topic prefixes for the ovenlink MQTT namespace.
//
// All topics use the flat scheme: ovenlink/{category}/{id}
const (
	// TopicPrefix is the base for all ovenlink topics.
	TopicPrefix = "ovenlink"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "ovenlink/system"
)

// Topics provides builders for ovenlink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("oven-abc123")
//	// Returns: "ovenlink/state/oven-abc123"
type Topics struct{}

// DeviceState returns the topic for canonical device state snapshots.
// Published retained so new subscribers receive the current state.
//
// Example: ovenlink/state/oven-abc123
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// DeviceEvent returns the topic for device change events.
//
// Example: ovenlink/event/oven-abc123/state_changed
func (Topics) DeviceEvent(deviceID, eventType string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, deviceID, eventType)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: ovenlink/health/anova
func (Topics) BridgeHealth(bridge string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridge)
}

// DeviceCommand returns the topic a client publishes to in order to
// drive one device.
//
// Example: ovenlink/cmd/oven-abc123
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/cmd/%s", TopicPrefix, deviceID)
}

// DeviceCommands returns a pattern matching all device command topics.
// The bridge subscribes to this for command ingress.
//
// Pattern: ovenlink/cmd/+
func (Topics) DeviceCommands() string {
	return fmt.Sprintf("%s/cmd/+", TopicPrefix)
}

// SystemStatus returns the system status topic.
//
// Example: ovenlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: ovenlink/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllDeviceEvents returns a pattern matching all device event topics.
//
// Pattern: ovenlink/event/+/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/event/+/+", TopicPrefix)
}

// AllTopics returns a pattern matching all ovenlink topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: ovenlink/#
func (Topics) AllTopics() string {
	return "ovenlink/#"
}
