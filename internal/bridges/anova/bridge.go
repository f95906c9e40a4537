package anova

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ovenlink/ovenlink/internal/anova"
	"github.com/ovenlink/ovenlink/internal/oven"
)

// Scheduler states.
type State int32

const (
	// StateUninitialized means no channel has been opened yet.
	StateUninitialized State = iota

	// StateConnecting means the push channel is being established and
	// the initial discovery round has not completed.
	StateConnecting

	// StateSteady means push messages apply immediately and the poll
	// timer is the only background activity.
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSteady:
		return "steady"
	default:
		return "uninitialized"
	}
}

// Scheduler operation constants.
const (
	// defaultPollInterval is the health-check poll cadence.
	defaultPollInterval = 30 * time.Second

	// historyWriteTimeout bounds the audit-trail insert per merge.
	historyWriteTimeout = 5 * time.Second

	// commandDispatchTimeout bounds one MQTT-requested command round trip.
	commandDispatchTimeout = 10 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the interface for MQTT state egress and command ingress.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic filter. The client
	// re-subscribes on reconnect.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// TelemetryWriter receives numeric snapshot fields for time-series
// storage. Implemented by the influxdb client wrapper.
type TelemetryWriter interface {
	WriteOvenTelemetry(deviceID, mode string, fields map[string]interface{})
}

// RecipeLoader is the external recipe collaborator, loaded best-effort
// during the connecting phase.
type RecipeLoader interface {
	// Load (re)reads the recipe library from its backing file.
	Load() error

	// Count returns the number of loaded recipes.
	Count() int
}

// TopicSet builds the MQTT topics the bridge publishes and listens to.
type TopicSet interface {
	DeviceState(deviceID string) string
	BridgeHealth(bridgeID string) string

	// DeviceCommands is the subscription pattern for inbound device
	// command requests.
	DeviceCommands() string
}

// Config holds scheduler configuration.
type Config struct {
	// BridgeID identifies this bridge in health messages and topics.
	BridgeID string

	// PollInterval is the health-check poll cadence. Default: 30s.
	PollInterval time.Duration

	// HealthInterval is the health report cadence. Default: 30s.
	HealthInterval time.Duration

	// QoS is the MQTT quality of service for state egress.
	QoS byte
}

// Options holds the collaborators for creating a bridge.
type Options struct {
	// Config is the scheduler configuration.
	Config Config

	// Channel is the cloud push channel.
	Channel anova.PushChannel

	// Registry is the device registry and merge engine.
	Registry *oven.Registry

	// Normalizer converts raw messages to deltas.
	Normalizer *oven.Normalizer

	// Publisher fans out change notifications. Required.
	Publisher *oven.Publisher

	// MQTT is optional; if nil, no state egress is published.
	MQTT MQTTClient

	// Topics builds egress topic names. Required when MQTT is set.
	Topics TopicSet

	// Telemetry is optional; if nil, no time-series points are written.
	Telemetry TelemetryWriter

	// History is optional; if nil, no audit trail is recorded.
	History oven.StateHistoryStore

	// Recipes is optional; loaded best-effort during CONNECTING.
	Recipes RecipeLoader

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge is the update scheduler: it funnels push messages and the
// periodic health-check poll into the merge engine, and fans accepted
// changes out to MQTT, InfluxDB and the state history.
//
// Thread Safety: All methods are safe for concurrent use. Merge order
// per device is guaranteed by the registry's per-entry serialization;
// the bridge adds no locking of its own around merges.
type Bridge struct {
	cfg        Config
	channel    anova.PushChannel
	registry   *oven.Registry
	normalizer *oven.Normalizer
	publisher  *oven.Publisher
	mqtt       MQTTClient
	topics     TopicSet
	telemetry  TelemetryWriter
	history    oven.StateHistoryStore
	recipes    RecipeLoader
	health     *HealthReporter

	state atomic.Int32

	// source labels merges for the audit trail: "push" between polls,
	// "poll" while a discovery round is being applied.
	discoveryActive atomic.Bool

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// NewBridge creates a new scheduler instance.
// Call Start() to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Channel == nil {
		return nil, fmt.Errorf("push channel is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if opts.MQTT != nil && opts.Topics == nil {
		return nil, fmt.Errorf("topics are required when mqtt is set")
	}

	cfg := opts.Config
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BridgeID == "" {
		cfg.BridgeID = "anova"
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        cfg,
		channel:    opts.Channel,
		registry:   opts.Registry,
		normalizer: opts.Normalizer,
		publisher:  opts.Publisher,
		mqtt:       opts.MQTT,
		topics:     opts.Topics,
		telemetry:  opts.Telemetry,
		history:    opts.History,
		recipes:    opts.Recipes,
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  cancel,
		logger:     logger,
	}
	b.state.Store(int32(StateUninitialized))

	if opts.MQTT != nil {
		b.health = NewHealthReporter(HealthReporterConfig{
			BridgeID:  cfg.BridgeID,
			Interval:  cfg.HealthInterval,
			Publisher: opts.MQTT,
			Channel:   opts.Channel,
			Topics:    opts.Topics,
		})
		b.health.SetLogger(logger)
	}

	return b, nil
}

// State returns the scheduler's current state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Start activates the scheduler.
//
// It wires the push channel callbacks, attempts the first connection
// and discovery round, loads the recipe library best-effort, and
// starts the poll and health loops. A failed first connect is not
// fatal: the scheduler stays in CONNECTING and retries on the poll
// cadence rather than in a tight loop.
func (b *Bridge) Start(ctx context.Context) error {
	b.state.Store(int32(StateConnecting))

	b.channel.SetOnState(b.handleStateMessage)
	b.channel.SetOnDevices(b.handleDeviceList)
	b.channel.SetOnDisconnect(b.handleDisconnect)

	if err := b.channel.Connect(ctx); err != nil {
		b.logger.Warn("initial connect failed, retrying on poll cadence", "error", err.Error())
	} else {
		b.state.Store(int32(StateSteady))
	}

	// Recipe load is best-effort: a broken library never blocks state sync.
	if b.recipes != nil {
		if err := b.recipes.Load(); err != nil {
			b.logger.Warn("recipe library load failed", "error", err.Error())
		} else {
			b.logger.Info("recipe library loaded", "recipes", b.recipes.Count())
		}
	}

	// Command ingress: MQTT clients drive the oven by publishing to
	// the device command topics.
	if b.mqtt != nil {
		topic := b.topics.DeviceCommands()
		if err := b.mqtt.Subscribe(topic, b.cfg.QoS, b.handleCommandMessage); err != nil {
			b.logger.Warn("command topic subscribe failed", "topic", topic, "error", err.Error())
		}
	}

	if b.health != nil {
		b.health.Start(b.ctx)
	}

	b.wg.Add(1)
	go b.pollLoop()

	b.logger.Info("scheduler started",
		"bridge_id", b.cfg.BridgeID,
		"state", b.State().String(),
		"poll_interval", b.cfg.PollInterval.String())
	return nil
}

// Stop gracefully shuts the scheduler down.
//
// The poll timer stops and the push channel detaches before state is
// abandoned; in-flight merges complete rather than being aborted
// mid-group-write.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()

		if b.health != nil {
			b.health.Stop()
		}

		b.channel.Close()
		b.wg.Wait()

		b.state.Store(int32(StateUninitialized))
		b.logger.Info("scheduler stopped")
	})
}

// pollLoop runs the health-check poll.
//
// Each tick re-confirms channel liveness. A dead channel triggers one
// reconnect attempt; failure waits for the next tick. A successful
// reconnect is followed by the cloud's discovery event, which re-seeds
// coarse state for every paired device.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.pollTick()
		}
	}
}

// pollTick performs one liveness check / reconnect attempt.
func (b *Bridge) pollTick() {
	if b.channel.IsConnected() {
		if b.health != nil {
			b.health.SetDeviceCount(b.registry.Count())
		}
		return
	}

	b.state.Store(int32(StateConnecting))
	b.logger.Info("push channel down, attempting reconnect")

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.PollInterval)
	defer cancel()

	if err := b.channel.Connect(ctx); err != nil {
		b.logger.Warn("reconnect failed, will retry on next poll tick", "error", err.Error())
		return
	}

	// The cloud replays the device list after connect; those coarse
	// deltas carry unnumbered markers and can never clobber fresher
	// numbered push state.
	b.state.Store(int32(StateSteady))
	b.logger.Info("push channel reconnected")
}

// handleStateMessage processes one push-delivered raw state message.
//
// Normalization errors drop only this message; they never affect other
// devices or the scheduler loop.
func (b *Bridge) handleStateMessage(raw map[string]interface{}) {
	source := oven.StateHistorySourcePush
	if b.discoveryActive.Load() {
		source = oven.StateHistorySourcePoll
	}
	b.ingest(raw, source)
}

// handleDeviceList processes a discovery event: every entry becomes a
// coarse delta through the same normalize/merge path as push state.
func (b *Bridge) handleDeviceList(devices []anova.DiscoveredDevice) {
	b.discoveryActive.Store(true)
	defer b.discoveryActive.Store(false)

	for _, d := range devices {
		if d.CookerID == "" {
			b.logger.Warn("discovery entry without device id dropped")
			continue
		}
		gen, _ := oven.ParseGeneration(d.Type)
		if _, created := b.registry.GetOrCreate(d.CookerID, gen); created {
			b.logger.Info("device discovered", "device_id", d.CookerID, "name", d.Name, "type", d.Type)
		}
		b.ingest(d.CoarseState(), oven.StateHistorySourcePoll)
	}

	if b.health != nil {
		b.health.SetDeviceCount(b.registry.Count())
	}
	b.logger.Info("discovery round applied", "devices", len(devices))
}

// handleDisconnect reacts to a dropped push channel. Reconnection is
// deferred to the poll tick so a failing endpoint is retried on the
// poll cadence, never in a tight loop.
func (b *Bridge) handleDisconnect(err error) {
	b.state.Store(int32(StateConnecting))
	b.logger.Warn("push channel disconnected", "error", err.Error())
}

// ingest runs normalize → merge → publish for one raw message.
func (b *Bridge) ingest(raw map[string]interface{}, source string) {
	delta, err := b.normalizer.Normalize(raw)
	if err != nil {
		b.logger.Warn("dropping message", "error", err.Error(), "source", source)
		return
	}
	if delta.Empty() && delta.Generation == oven.GenerationUnknown {
		b.logger.Debug("empty delta dropped", "device_id", delta.DeviceID)
		return
	}

	changed := b.registry.Apply(delta)
	if !changed {
		return
	}

	b.publisher.Notify(delta.DeviceID)
	b.egress(delta.DeviceID, source)
}

// egress fans one accepted change out to MQTT, InfluxDB and the audit
// trail. All sinks are best-effort: a sink failure is logged and never
// affects the snapshot or other sinks.
func (b *Bridge) egress(deviceID, source string) {
	snapshot, err := b.registry.Snapshot(deviceID)
	if err != nil {
		return
	}

	if b.mqtt != nil {
		if payload, err := json.Marshal(snapshot); err == nil {
			topic := b.topics.DeviceState(deviceID)
			if err := b.mqtt.Publish(topic, payload, b.cfg.QoS, true); err != nil {
				b.logger.Error("state publish failed", "device_id", deviceID, "error", err.Error())
			}
		}
	}

	if b.telemetry != nil {
		mode := ""
		if snapshot.OperatingMode != nil {
			mode = string(*snapshot.OperatingMode)
		}
		b.telemetry.WriteOvenTelemetry(deviceID, mode, telemetryFields(snapshot))
	}

	if b.history != nil {
		ctx, cancel := context.WithTimeout(b.ctx, historyWriteTimeout)
		defer cancel()
		if err := b.history.RecordStateChange(ctx, deviceID, snapshot, source); err != nil {
			b.logger.Error("state history write failed", "device_id", deviceID, "error", err.Error())
		}
	}
}

// SendCommand forwards a command to a device through the push channel.
// The device must be known to the registry and the channel must be up.
func (b *Bridge) SendCommand(ctx context.Context, deviceID, command string, body map[string]interface{}) error {
	if _, err := b.registry.Get(deviceID); err != nil {
		return err
	}
	if b.State() != StateSteady {
		return ErrNotSteady
	}
	return b.channel.SendCommand(ctx, deviceID, command, body)
}
