package main

import (
	"context"
	"fmt"
	"time"

	_ "github.com/nerrad567/homecore/migrations"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/calibration"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/eventbus"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/database"
	"github.com/nerrad567/homecore/internal/infrastructure/influxdb"
	"github.com/nerrad567/homecore/internal/infrastructure/logging"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
	"github.com/nerrad567/homecore/internal/notify"
	"github.com/nerrad567/homecore/internal/orchestrator"
	"github.com/nerrad567/homecore/internal/snapshot"
	"github.com/nerrad567/homecore/internal/solar"
	"github.com/nerrad567/homecore/internal/telemetry"
	"github.com/nerrad567/homecore/internal/timeseries"
)

// shutdownTimeout bounds draining the worker pool after the loop stops.
const shutdownTimeout = 10 * time.Second

// run is the application lifecycle, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting homecore", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)
	loc := cfg.TimeLocation()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

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
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	calibrator, err := calibration.New()
	if err != nil {
		return fmt.Errorf("starting calibration runtime: %w", err)
	}
	defer calibrator.Close()

	bus := eventbus.New()
	bus.SetLogger(log.Component("eventbus"))

	devices := device.NewRegistry(&device.Env{
		Bus:            bus,
		Transport:      mqttClient,
		Logger:         log.Component("devices"),
		Calibrator:     calibrator,
		Location:       loc,
		CommandTimeout: cfg.Runtime.ExecutorTimeout,
		ResetDetection: cfg.Sensors.ResetDetection,
		Retention:      cfg.Retention(),
		QoS:            byte(cfg.MQTT.QoS),
	})

	actionRepo := automation.NewSQLiteRepository(db.DB)
	actions := automation.NewRegistry(actionRepo)
	actions.SetLogger(log.Component("actions"))

	store := snapshot.NewStore(devices,
		device.NewSQLiteRepository(db.DB),
		timeseries.NewSQLiteRepository(db.DB),
		actions,
	)
	store.SetLogger(log.Component("snapshot"))
	if err := store.Load(ctx); err != nil {
		// Entities that loaded still run; broken ones are reported once here.
		log.Warn("snapshot loaded with errors", "error", err)
	}

	notifier := notify.New(
		notify.LogSink{Logger: log.Component("alerts")},
		notify.MQTTSink{
			Publisher: mqttClient,
			Topic:     mqttClient.Topics().Alerts(cfg.Alerts.Topic),
			QoS:       byte(cfg.MQTT.QoS),
		},
	)
	notifier.SetLogger(log.Component("notify"))

	pool := orchestrator.NewPool(cfg.Runtime.Workers, cfg.Runtime.QueueSize, log.Component("pool"))
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := pool.Close(drainCtx); closeErr != nil {
			log.Warn("worker pool did not drain", "error", closeErr)
		}
	}()

	systems, err := buildSystems(cfg, systemDeps{
		bus:      bus,
		devices:  devices,
		actions:  actions,
		runs:     actionRepo,
		notifier: notifier,
		pool:     pool,
		influx:   influxClient,
		store:    store,
		log:      log,
	})
	if err != nil {
		devices.Close()
		return err
	}

	loop := orchestrator.NewLoop(cfg.Runtime.TickInterval, bus, systems...)
	loop.SetLogger(log.Component("loop"))

	log.Info("initialisation complete", "rooms", len(devices.Rooms()), "devices", len(devices.Devices()), "actions", actions.Count())
	if err := loop.Run(ctx); err != nil {
		return err
	}

	log.Info("homecore stopped")
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.FromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

type systemDeps struct {
	bus      *eventbus.Bus
	devices  *device.Registry
	actions  *automation.Registry
	runs     automation.RunRecorder
	notifier *notify.Notifier
	pool     *orchestrator.Pool
	influx   *influxdb.Client
	store    *snapshot.Store
	log      *logging.Logger
}

// buildSystems returns the tick loop's systems in update order. The
// snapshot scheduler is last so it stops first and its final save sees
// every device still live.
func buildSystems(cfg *config.Config, deps systemDeps) ([]orchestrator.System, error) {
	loc := cfg.TimeLocation()

	deviceSystem := device.NewSystem(deps.devices, deps.notifier, device.SystemConfig{
		Workers:          cfg.Runtime.Workers,
		DeviceTimeout:    cfg.Runtime.DeviceTimeout,
		CheckInterval:    cfg.CheckInterval(),
		InactiveValidity: cfg.Alerts.InactiveValidity,
	})
	deviceSystem.SetLogger(deps.log.Component("devices"))

	actionSystem := automation.NewSystem(deps.actions, &automation.Env{
		Bus:             deps.bus,
		Resolver:        deps.devices,
		Sun:             solar.NewCalculator(cfg.Site.Location.Latitude, cfg.Site.Location.Longitude, loc),
		Pool:            deps.pool,
		Runs:            deps.runs,
		Logger:          deps.log.Component("actions"),
		Location:        loc,
		ExecutorTimeout: cfg.Runtime.ExecutorTimeout,
	}, cfg.Runtime.Workers)

	systems := []orchestrator.System{deviceSystem, actionSystem}

	if deps.influx != nil {
		forwarder := telemetry.NewForwarder(deps.bus, deps.influx)
		forwarder.SetLogger(deps.log.Component("telemetry"))
		systems = append(systems, forwarder)
	}

	if cfg.Persistence.Enabled {
		scheduler, err := snapshot.NewScheduler(deps.store, cfg.Persistence.Schedule, loc)
		if err != nil {
			return nil, fmt.Errorf("persistence schedule: %w", err)
		}
		scheduler.SetLogger(deps.log.Component("snapshot"))
		systems = append(systems, scheduler)
	}

	return systems, nil
}

// healthCheck verifies every infrastructure connection. influxClient may be nil.
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
