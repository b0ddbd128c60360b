// Access Core - physical access control service
//
// This is the main entry point. Door controllers publish card reads, status
// heartbeats, events and command acknowledgments over MQTT; the access core
// decides, answers, commands the lock and keeps the audit trail.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/gray-logic-access/migrations"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/alert"
	"github.com/nerrad567/gray-logic-access/internal/api"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/gateway"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/amqp"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/redis"
	"github.com/nerrad567/gray-logic-access/internal/ledger"
	"github.com/nerrad567/gray-logic-access/internal/protocol"
	"github.com/nerrad567/gray-logic-access/internal/router"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Ledger backends.
const (
	ledgerMemory = "memory"
	ledgerRedis  = "redis"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting access core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]api.HealthChecker{"database": db}

	// Pending command ledger
	store, closeStore, err := openLedgerStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()
	pending := ledger.New(store, ledger.WithLogger(log.Component("ledger")), ledger.WithMetrics(m))
	log.Info("pending command ledger ready", "backend", ledgerBackend(cfg))

	// Transport
	transport := mqtt.NewAdapter(cfg.MQTT,
		mqtt.WithLogger(log.Component("mqtt")),
		mqtt.WithStateHook(m.SetTransportUp),
	)
	checks["mqtt"] = transport

	gw := gateway.New(transport, pending,
		gateway.WithLogger(log.Component("gateway")),
		gateway.WithMetrics(m),
		gateway.WithCommandTimeout(cfg.Access.CommandTimeout),
	)

	sqlDB := db.DB
	engineCfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}
	engine := access.NewEngine(access.Repositories{
		Cards:       access.NewCardRepository(sqlDB),
		Doors:       access.NewDoorRepository(sqlDB),
		Users:       access.NewUserRepository(sqlDB),
		Permissions: access.NewPermissionRepository(sqlDB),
	}, gw, engineCfg, access.WithLogger(log.Component("access")), access.WithMetrics(m))

	// Telemetry (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Alerts
	auditRepo := audit.NewSQLiteRepository(sqlDB)
	sinks := alert.Multi{alert.NewAuditSink(auditRepo)}
	// API actions audit themselves, so operator alerts only go to the broker.
	var operatorAlerts alert.Sink
	if cfg.AMQP.Enabled {
		publisher, dialErr := amqp.Dial(cfg.AMQP)
		if dialErr != nil {
			return fmt.Errorf("connecting to AMQP: %w", dialErr)
		}
		defer func() {
			log.Info("closing AMQP connection")
			if closeErr := publisher.Close(); closeErr != nil {
				log.Error("error closing AMQP", "error", closeErr)
			}
		}()
		broker := alert.NewBrokerSink(publisher)
		sinks = append(sinks, broker)
		operatorAlerts = broker
		log.Info("AMQP alert publishing enabled", "exchange", cfg.AMQP.Exchange)
	}

	routerOpts := []router.Option{
		router.WithAudit(auditRepo),
		router.WithAlerts(sinks),
		router.WithLogger(log.Component("router")),
		router.WithMetrics(m),
	}
	if influxClient != nil {
		routerOpts = append(routerOpts, router.WithTelemetry(influxClient))
	}
	msgRouter := router.New(engine, gw, routerOpts...)
	if err := subscribe(ctx, transport, msgRouter); err != nil {
		return err
	}

	sweeper := ledger.NewSweeper(pending, cfg.Access.CleanupAge(), cfg.Access.CleanupEvery())
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log.Component("api"),
		Pending:  pending,
		Audit:    auditRepo,
		Lockdown: gw,
		Doors:    access.NewDoorRepository(sqlDB),
		Alerts:   operatorAlerts,
		Gatherer: reg,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	transportErr := make(chan error, 1)
	go func() {
		transportErr <- transport.Run(ctx)
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
		<-transportErr
	case runErr = <-transportErr:
		// The transport gave up reconnecting; an external supervisor restarts us.
		log.Error("transport stopped", "error", runErr)
		if runErr != nil {
			runErr = fmt.Errorf("mqtt transport: %w", runErr)
		}
	}

	msgRouter.Wait()
	log.Info("access core stopped")
	return runErr
}

// subscribe routes every inbound topic family to the message router.
func subscribe(ctx context.Context, transport *mqtt.Adapter, r *router.Router) error {
	handler := r.Handler(ctx)
	topics := protocol.Topics{}
	for _, topic := range []string{
		topics.AllRequests(),
		topics.AllCommandAcks(),
		topics.AllDeviceStatus(),
		topics.AllEvents(),
	} {
		if err := transport.Handle(topic, gateway.QoSHighest, handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// engineConfig converts the access section into engine settings.
func engineConfig(cfg *config.Config) (access.EngineConfig, error) {
	level, err := access.ParseSecurityLevel(strings.ToLower(strings.TrimSpace(cfg.Access.PINSecurityLevel)))
	if err != nil {
		return access.EngineConfig{}, fmt.Errorf("access.pin_security_level: %w", err)
	}
	return access.EngineConfig{
		UnlockDuration:   cfg.Access.DefaultUnlockDuration,
		PINSecurityLevel: level,
		Location:         cfg.Location(),
	}, nil
}

// openLedgerStore returns the configured pending command store and a
// function releasing it.
func openLedgerStore(ctx context.Context, cfg *config.Config, checks map[string]api.HealthChecker) (ledger.Store, func(), error) {
	switch ledgerBackend(cfg) {
	case ledgerMemory:
		return ledger.NewMemoryStore(), func() {}, nil
	case ledgerRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		checks["redis"] = client
		return ledger.NewRedisStore(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

func ledgerBackend(cfg *config.Config) string {
	if cfg.Ledger.Backend == "" {
		return ledgerMemory
	}
	return cfg.Ledger.Backend
}

// getConfigPath returns the configuration file path.
// Uses ACCESSCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ACCESSCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
