// ovenlink - cloud oven state synchronisation service
//
// This is the main entry point for the ovenlink application. ovenlink
// maintains a canonical, monotonically consistent view of cloud-connected
// ovens by merging push updates and reconciliation polls, and exposes
// that view over a REST/WebSocket API, MQTT, InfluxDB telemetry and a
// SQLite state history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ovenlink/ovenlink/migrations"

	"github.com/ovenlink/ovenlink/internal/anova"
	"github.com/ovenlink/ovenlink/internal/api"
	bridge "github.com/ovenlink/ovenlink/internal/bridges/anova"
	"github.com/ovenlink/ovenlink/internal/infrastructure/config"
	"github.com/ovenlink/ovenlink/internal/infrastructure/database"
	"github.com/ovenlink/ovenlink/internal/infrastructure/influxdb"
	"github.com/ovenlink/ovenlink/internal/infrastructure/logging"
	"github.com/ovenlink/ovenlink/internal/infrastructure/mqtt"
	"github.com/ovenlink/ovenlink/internal/oven"
	"github.com/ovenlink/ovenlink/internal/recipes"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting ovenlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the state history database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	history := oven.NewSQLiteStateHistoryStore(db.DB)

	// Initialise the merge engine
	registry := oven.NewRegistry()
	registry.SetLogger(log)
	normalizer := oven.NewNormalizer()
	publisher := oven.NewPublisher(registry)

	// Connect to MQTT broker (optional state egress)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional telemetry)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Recipe library (empty path disables it)
	library := recipes.NewLibrary(cfg.Recipes.Path)
	if cfg.Recipes.Path == "" {
		log.Info("recipe library disabled")
	}

	// Start the cloud bridge
	ovenBridge, err := startAnovaBridge(ctx, cfg, registry, normalizer, publisher,
		mqttClient, influxClient, history, library, log)
	if err != nil {
		return fmt.Errorf("starting anova bridge: %w", err)
	}
	defer func() {
		log.Info("stopping anova bridge")
		ovenBridge.Stop()
	}()

	// Start the API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Registry:  registry,
		Publisher: publisher,
		History:   history,
		Recipes:   library,
		Bridge:    ovenBridge,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Anova bridge
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("ovenlink stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OVENLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OVENLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - server: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// Bridge health is reported continuously on its MQTT health topic;
	// Start() succeeding is the startup check.

	return nil
}

// mqttBridgeAdapter adapts *mqtt.Client to the bridge's MQTTClient
// interface. The client's Subscribe takes the defined mqtt.MessageHandler
// type, so a plain func parameter needs this shim.
type mqttBridgeAdapter struct {
	*mqtt.Client
}

func (a mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.Client.Subscribe(topic, qos, mqtt.MessageHandler(handler))
}

// startAnovaBridge creates the cloud push channel and the update
// scheduler, and starts it.
//
// The MQTT and InfluxDB clients may be nil; the bridge skips the
// corresponding egress paths.
func startAnovaBridge(
	ctx context.Context,
	cfg *config.Config,
	registry *oven.Registry,
	normalizer *oven.Normalizer,
	publisher *oven.Publisher,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	history oven.StateHistoryStore,
	library *recipes.Library,
	log *logging.Logger,
) (*bridge.Bridge, error) {
	channel := anova.NewClient(anova.Config{
		URL:            cfg.Anova.WSURL,
		Token:          cfg.Anova.Token,
		Environment:    cfg.Anova.Environment,
		ConnectTimeout: cfg.GetDiscoveryTimeout(),
		CommandTimeout: cfg.GetCommandTimeout(),
	})
	channel.SetLogger(log)

	opts := bridge.Options{
		Config: bridge.Config{
			BridgeID:     cfg.Service.ID,
			PollInterval: cfg.GetPollInterval(),
			QoS:          byte(cfg.MQTT.QoS),
		},
		Channel:    channel,
		Registry:   registry,
		Normalizer: normalizer,
		Publisher:  publisher,
		History:    history,
		Recipes:    library,
		Logger:     log,
	}
	// Assign optional collaborators only when present; a typed-nil
	// interface would defeat the bridge's nil checks.
	if mqttClient != nil {
		opts.MQTT = mqttBridgeAdapter{mqttClient}
		opts.Topics = mqtt.Topics{}
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}

	ovenBridge, err := bridge.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := ovenBridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("anova bridge started",
		"ws_url", cfg.Anova.WSURL,
		"poll_interval", cfg.GetPollInterval(),
	)

	return ovenBridge, nil
}
