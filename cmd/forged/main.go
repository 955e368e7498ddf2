// Forge Fleet Core - device fleet messaging platform
//
// This is the main entry point for the Forge Fleet Core daemon. It wires
// the broker transport, the fleet store, the command-and-control
// messaging core, and the HTTP API into one process. Multiple instances
// may run against the same broker and database; correctness never
// depends on in-process locks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgefleet/forge-core/internal/acl"
	"github.com/forgefleet/forge-core/internal/api"
	"github.com/forgefleet/forge-core/internal/audit"
	"github.com/forgefleet/forge-core/internal/comms"
	"github.com/forgefleet/forge-core/internal/fleet"
	"github.com/forgefleet/forge-core/internal/infrastructure/config"
	"github.com/forgefleet/forge-core/internal/infrastructure/database"
	"github.com/forgefleet/forge-core/internal/infrastructure/logging"
	"github.com/forgefleet/forge-core/internal/infrastructure/mqtt"
	"github.com/forgefleet/forge-core/internal/infrastructure/telemetry"
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
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Forge Fleet Core",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and apply schema
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

	if err := db.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping schema: %w", err)
	}
	log.Info("database schema ready")

	repo := fleet.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Connect to the MQTT broker. A disabled broker host yields an
	// offline client: publishes are no-ops and nothing is subscribed.
	broker, err := mqtt.Connect(cfg.Broker)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer func() {
		log.Info("disconnecting from broker")
		if closeErr := broker.Close(); closeErr != nil {
			log.Error("error closing broker connection", "error", closeErr)
		}
	}()
	if broker.Disabled() {
		log.Warn("broker connection disabled, running offline")
	} else {
		log.Info("broker connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
			"client_id", cfg.Broker.ClientID,
		)
	}

	broker.SetLogger(log)
	broker.SetOnConnect(func() {
		log.Info("broker reconnected")
	})
	broker.SetOnDisconnect(func(err error) {
		log.Warn("broker disconnected", "error", err)
	})

	// Connect telemetry (optional)
	var recorder comms.Recorder = comms.NopRecorder{}
	if cfg.Telemetry.Enabled {
		metrics, err := telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := metrics.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		metrics.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		recorder = metrics
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// Broker access rules
	registry := acl.NewDefaultRegistry(repo)

	// Messaging core
	dispatcher := comms.NewDispatcher(broker, recorder, log, comms.DefaultReplyTimeout)
	reconciler := comms.NewReconciler(repo, dispatcher, recorder, log)
	relay := comms.NewLogRelay(repo, dispatcher, log)
	service := comms.NewService(broker, dispatcher, reconciler, relay, log, byte(cfg.Broker.QoS)) //nolint:gosec // QoS validated to 0..2

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("starting comms service: %w", err)
	}

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Repo:     repo,
		ACL:      registry,
		Comms:    service,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, broker, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Telemetry (if enabled)
	// 3. Broker
	// 4. Database

	log.Info("Forge Fleet Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FORGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FORGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, broker *mqtt.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := broker.HealthCheck(ctx); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
