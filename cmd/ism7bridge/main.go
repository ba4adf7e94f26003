// ISM7 Bridge - Wolf heating controller telegram gateway
//
// This is the main entry point for the ISM7 bridge service. The bridge:
//   - Converts raw controller telegrams into typed parameter values
//   - Publishes values to MQTT and announces them to Home Assistant
//   - Encodes parameter writes back into controller telegrams
//   - Serves a REST/WebSocket API with history, metrics and auth
//
// Subcommands:
//
//	ism7bridge                      run the service (default)
//	ism7bridge trace [flags] FILE   print a telegram capture as JSON lines
//	ism7bridge hash-password [PW]   print an argon2id hash for security.users
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-ism7/internal/api"
	"github.com/nerrad567/gray-logic-ism7/internal/auth"
	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
	"github.com/nerrad567/gray-logic-ism7/internal/history"
	"github.com/nerrad567/gray-logic-ism7/internal/homeassistant"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-ism7/internal/metrics"
	"github.com/nerrad567/gray-logic-ism7/internal/trace"
	"github.com/nerrad567/gray-logic-ism7/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// pruneInterval is how often old readings are deleted.
	pruneInterval = time.Hour

	// statsInterval is how often bridge counters go to InfluxDB.
	statsInterval = time.Minute
)

func main() {
	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1], os.Args[2:], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runCommand dispatches a subcommand.
func runCommand(name string, args []string, stdin io.Reader, stdout io.Writer) error {
	switch name {
	case "serve":
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx)
	case "trace":
		return runTrace(args, stdout)
	case "hash-password":
		return runHashPassword(args, stdin, stdout)
	case "version":
		fmt.Fprintf(stdout, "ism7bridge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want serve, trace, hash-password or version)", name)
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
	log.Info("starting ISM7 bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing left to log to
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open history database
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	historyRepo := history.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
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

	// Raw telegram capture (optional)
	var recorder *trace.FileRecorder
	if cfg.Trace.Enabled {
		recorder, err = trace.NewFileRecorder(cfg.Trace.Path)
		if err != nil {
			return fmt.Errorf("opening telegram trace: %w", err)
		}
		defer func() {
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing telegram trace", "error", closeErr)
			}
			if n := recorder.Errors(); n > 0 {
				log.Warn("telegram trace had write errors", "count", n)
			}
		}()
		log.Info("telegram trace enabled", "path", cfg.Trace.Path)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if !cfg.ISM7.Enabled {
		log.Info("ISM7 bridge disabled, nothing to serve")
		<-ctx.Done()
		return nil
	}

	collector := metrics.NewCollector()
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	svc := services{
		db:        db,
		mqtt:      mqttClient,
		history:   historyRepo,
		influx:    influxClient,
		recorder:  recorder,
		collector: collector,
		hub:       hub,
		log:       log,
	}
	bridge, err := startBridge(ctx, cfg, svc)
	if err != nil {
		return fmt.Errorf("starting ISM7 bridge: %w", err)
	}
	defer func() {
		log.Info("stopping ISM7 bridge")
		bridge.Stop()
	}()

	go pruneLoop(ctx, historyRepo, db, cfg.GetRetention(), log)
	if influxClient != nil {
		go statsLoop(ctx, influxClient, cfg.Service.ID, bridge)
	}

	if cfg.API.Enabled {
		apiServer, err := startAPI(ctx, cfg, bridge, svc)
		if err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, bridge, trace, InfluxDB, MQTT, database.

	log.Info("ISM7 bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ISM7BRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ISM7BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// services collects the connected infrastructure shared by the bridge
// and the API. Optional members are nil when disabled.
type services struct {
	db        *database.DB
	mqtt      *mqtt.Client
	history   *history.SQLiteRepository
	influx    *influxdb.Client
	recorder  *trace.FileRecorder
	collector *metrics.Collector
	hub       *api.Hub
	log       *logging.Logger
}

// startBridge loads the device configuration and catalog, then starts the
// ISM7 bridge.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - deps: Connected infrastructure and optional sinks
//
// Returns:
//   - *ism7.Bridge: Running bridge
//   - error: If configuration is invalid or the bridge fails to start
func startBridge(ctx context.Context, cfg *config.Config, deps services) (*ism7.Bridge, error) {
	bridgeCfg, err := ism7.LoadConfig(cfg.ISM7.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading ISM7 bridge config: %w", err)
	}
	catalog, err := ism7.LoadCatalog(bridgeCfg.Bridge.Catalog)
	if err != nil {
		return nil, fmt.Errorf("loading parameter catalog: %w", err)
	}
	deps.log.Info("ISM7 bridge config loaded",
		"path", cfg.ISM7.ConfigFile,
		"catalog", bridgeCfg.Bridge.Catalog,
		"devices", len(bridgeCfg.Devices),
	)

	mqttAdapter := &mqttBridgeAdapter{client: deps.mqtt}

	opts := ism7.BridgeOptions{
		Config:     bridgeCfg,
		Catalog:    catalog,
		MQTTClient: mqttAdapter,
		TopicRoot:  cfg.MQTT.TopicRoot,
		Version:    version,
		Logger:     deps.log,
		Recorder:   deps.history,
		Listener:   deps.hub,
		Observer:   deps.collector,
	}
	// Optional sinks are only assigned when present so the bridge sees a
	// nil interface rather than a typed nil pointer.
	if deps.influx != nil {
		opts.Metrics = deps.influx
	}
	if deps.recorder != nil {
		opts.Tracer = deps.recorder
	}
	if bridgeCfg.Discovery.Enabled {
		publisher := homeassistant.New(homeassistant.Options{
			Client:      mqttAdapter,
			DiscoveryID: bridgeCfg.GetDiscoveryID(),
			Prefix:      bridgeCfg.Discovery.Prefix,
			QoS:         byte(bridgeCfg.Discovery.QoS), //nolint:gosec // validated to 0..2
			Retain:      bridgeCfg.Discovery.Retain,
			Logger:      deps.log,
		})
		opts.Discovery = publisher
	}

	bridge, err := ism7.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating ISM7 bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return nil, fmt.Errorf("starting ISM7 bridge: %w", err)
	}
	deps.log.Info("ISM7 bridge started", "devices", len(bridge.Devices()))

	return bridge, nil
}

// startAPI builds the authenticator and starts the HTTP API server.
func startAPI(ctx context.Context, cfg *config.Config, bridge *ism7.Bridge, deps services) (*api.Server, error) {
	users := make([]auth.User, 0, len(cfg.Security.Users))
	for _, u := range cfg.Security.Users {
		users = append(users, auth.User{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Role:         auth.Role(u.Role),
		})
	}
	authenticator, err := auth.NewAuthenticator(cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL, users)
	if err != nil {
		return nil, fmt.Errorf("creating authenticator: %w", err)
	}
	if authenticator.Users() == 0 {
		deps.log.Warn("no API users configured, only health and metrics endpoints are usable")
	}
	for _, name := range authenticator.WeakHashes() {
		deps.log.Warn("password hash uses outdated argon2id settings, regenerate with hash-password", "user", name)
	}

	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   deps.log,
		Bridge:   bridge,
		Auth:     authenticator,
		History:  deps.history,
		Database: deps.db,
		Broker:   deps.mqtt,
		Metrics:  deps.collector.Handler(),
		Hub:      deps.hub,
		Version:  version,
	}
	if deps.influx != nil {
		apiDeps.Influx = deps.influx
	}
	srv, err := api.New(apiDeps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return srv, nil
}

// pruner deletes readings older than a cutoff.
type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// compactor reclaims space after rows were deleted.
type compactor interface {
	Compact(ctx context.Context) error
}

// pruneLoop enforces the reading retention until ctx is cancelled.
// A zero retention keeps everything. The database is compacted after
// every prune that deleted rows.
func pruneLoop(ctx context.Context, repo pruner, db compactor, retention time.Duration, log *logging.Logger) {
	if retention <= 0 {
		return
	}
	prune := func() {
		n, err := repo.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Error("pruning reading history failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		log.Info("pruned reading history", "deleted", n, "retention", retention.String())
		if err := db.Compact(ctx); err != nil {
			log.Warn("compacting database failed", "error", err)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// statsSink receives periodic bridge counters.
type statsSink interface {
	WriteBridgeStats(serviceID string, s influxdb.BridgeCounters)
}

// statsLoop writes bridge counters to InfluxDB until ctx is cancelled.
func statsLoop(ctx context.Context, sink statsSink, serviceID string, bridge api.BridgeService) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeStats(sink, serviceID, bridge.GetMetrics())
		}
	}
}

func writeStats(sink statsSink, serviceID string, m ism7.BridgeMetrics) {
	sink.WriteBridgeStats(serviceID, influxdb.BridgeCounters{
		TelegramsRx:     m.TelegramsRx,
		CommandsTx:      m.CommandsTx,
		ValuesPublished: m.ValuesPublished,
		Errors:          m.Errors,
	})
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the ISM7 bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - ISM7 bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements ism7.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements ism7.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements ism7.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements ism7.MQTTClient.
// The MQTT client lifecycle is owned by run's defer chain, so this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
