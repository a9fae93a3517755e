// dysonlink - local controller for Dyson air treatment appliances
//
// This is the main entry point. At startup it:
//   - fetches the device manifest from the account API
//   - finds the appliances on the LAN over mDNS
//   - opens one MQTT session per appliance
//   - records state history (SQLite) and telemetry (InfluxDB) when enabled
//   - serves the REST/WebSocket API
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/dysonlink/internal/api"
	"github.com/nerrad567/dysonlink/internal/cloud"
	"github.com/nerrad567/dysonlink/internal/device"
	"github.com/nerrad567/dysonlink/internal/discovery"
	"github.com/nerrad567/dysonlink/internal/infrastructure/config"
	"github.com/nerrad567/dysonlink/internal/infrastructure/database"
	"github.com/nerrad567/dysonlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/dysonlink/internal/infrastructure/logging"
	"github.com/nerrad567/dysonlink/migrations"
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

// historyRetention is how long state history rows are kept.
const historyRetention = 30 * 24 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting dysonlink",
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
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	manifest, err := fetchManifest(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Discovery runs for the life of the process so a device that changes
	// address after a restart can still be resolved on first connect.
	services := discovery.NewRegistry()
	browser := discovery.NewBrowser(discovery.BrowserConfig{
		ServiceType: cfg.Discovery.ServiceType,
		Domain:      cfg.Discovery.Domain,
		Interface:   cfg.Discovery.Interface,
	}, services)
	browser.SetLogger(log.With("component", "discovery"))
	if err := browser.Start(ctx); err != nil {
		return fmt.Errorf("starting mDNS browser: %w", err)
	}
	defer browser.Stop()

	registry := device.NewRegistry()
	registry.SetLogger(log)

	dialer := device.MQTTDialer{
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		ConnectTimeout: time.Duration(cfg.MQTT.ConnectTimeout) * time.Second,
		PublishTimeout: time.Duration(cfg.MQTT.PublishTimeout) * time.Second,
		KeepAlive:      time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		Logger:         log.With("component", "mqtt"),
	}
	loaded, err := registry.Load(manifest, discovery.NewResolver(services), dialer, cfg.Devices.Serials)
	if err != nil {
		log.Warn("some manifest entries were skipped", "error", err)
	}
	if loaded == 0 {
		return errors.New("no devices to manage")
	}
	log.Info("device registry initialised", "devices", loaded)

	var db *database.DB
	var history device.StateHistoryRepository
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		repo := device.NewSQLiteStateHistoryRepository(db.DB)
		if pruned, pruneErr := repo.PruneHistory(ctx, historyRetention); pruneErr != nil {
			log.Warn("pruning state history failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("state history pruned", "rows", pruned)
		}
		registry.Subscribe(device.HistoryRecorder(repo, log))
		history = repo
	} else {
		log.Info("state history disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		registry.Subscribe(device.TelemetryRecorder(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	waitForDevices(ctx, services, registry.Serials(), cfg.GetDiscoveryWait(), log)

	if err := registry.ConnectAll(ctx); err != nil {
		log.Warn("some devices failed to connect", "error", err)
	}
	defer func() {
		log.Info("disconnecting devices")
		if discErr := registry.DisconnectAll(); discErr != nil {
			log.Error("error disconnecting devices", "error", discErr)
		}
	}()
	stats := registry.GetStats()
	log.Info("devices connected", "connected", stats.ConnectedDevices, "total", stats.TotalDevices)

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log,
			Registry:  registry,
			History:   history,
			Discovery: services,
			DB:        db,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := srv.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, devices, InfluxDB, database, browser.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DYSONLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DYSONLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// fetchManifest signs in to the account API and lists the devices.
func fetchManifest(ctx context.Context, cfg *config.Config, log *logging.Logger) ([]cloud.ManifestEntry, error) {
	client := cloud.NewClient(cloud.Config{
		BaseURL:            cfg.Cloud.BaseURL,
		Country:            cfg.Cloud.Country,
		Timeout:            cfg.GetCloudTimeout(),
		InsecureSkipVerify: cfg.Cloud.InsecureSkipVerify,
	})

	session, err := client.Authenticate(ctx, cfg.Cloud.Email, cfg.Cloud.Password)
	if err != nil {
		return nil, fmt.Errorf("authenticating with account API: %w", err)
	}

	manifest, err := session.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching device manifest: %w", err)
	}
	log.Info("device manifest fetched", "account", session.Account(), "entries", len(manifest))
	return manifest, nil
}

// openDatabase opens the history database and applies migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Path, "migrations_applied", applied)
	return db, nil
}

// waitForDevices blocks until every serial has been discovered or timeout
// elapses. Devices still missing are connected anyway; their first connect
// fails and can be retried.
func waitForDevices(ctx context.Context, services *discovery.Registry, serials []string, timeout time.Duration, log *logging.Logger) {
	if timeout <= 0 {
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	missing, err := services.WaitFor(waitCtx, serials)
	if err != nil {
		log.Warn("devices not discovered", "missing", missing, "timeout", timeout)
		return
	}
	log.Info("all devices discovered", "devices", len(serials))
}

// healthCheck verifies the optional infrastructure connections.
//
// Parameters:
//   - db: Database connection to check (nil if disabled)
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
