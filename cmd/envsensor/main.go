// envsensor - environmental sensor publisher
//
// Reads a DHT22, an MQ-2 gas sensor, a light sensor and a PIR on a
// Raspberry Pi and publishes one telemetry message per cycle to an MQTT
// broker such as AWS IoT Core.
//
// Exit status is 0 after a signal, the configured publish count or the
// receive target, and 1 on any startup failure or when the broker refuses
// to restore a subscription.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/envsensor/internal/connection"
	"github.com/nerrad567/envsensor/internal/fault"
	"github.com/nerrad567/envsensor/internal/infrastructure/config"
	"github.com/nerrad567/envsensor/internal/infrastructure/database"
	"github.com/nerrad567/envsensor/internal/infrastructure/influxdb"
	"github.com/nerrad567/envsensor/internal/infrastructure/logging"
	"github.com/nerrad567/envsensor/internal/infrastructure/mqtt"
	"github.com/nerrad567/envsensor/internal/journal"
	"github.com/nerrad567/envsensor/internal/publisher"
	"github.com/nerrad567/envsensor/internal/sensor"
	"github.com/nerrad567/envsensor/internal/sensor/hardware"
	"github.com/nerrad567/envsensor/internal/telemetry"
	"github.com/nerrad567/envsensor/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds flushing the journal on exit.
	shutdownTimeout = 5 * time.Second
)

var _ connection.Transport = (*mqtt.Client)(nil)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the application and blocks until the publish loop stops.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//
// Returns:
//   - error: nil on a clean stop; startup failures and a rejected
//     resubscription are returned
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting envsensor",
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
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	deviceID, err := resolveDeviceID(cfg.Device.ID, telemetry.DeviceID)
	if err != nil {
		return fmt.Errorf("resolving device id: %w", err)
	}
	log = log.With("device_id", deviceID)

	board, err := hardware.Open(cfg.Sensors)
	if err != nil {
		return fmt.Errorf("opening sensors: %w", err)
	}
	defer func() {
		if closeErr := board.Close(); closeErr != nil {
			log.Warn("error releasing sensors", "error", closeErr)
		}
	}()

	reader, err := newReader(ctx, cfg.Sensors, board, log)
	if err != nil {
		return err
	}

	var recorder connection.Recorder
	if cfg.Journal.Enabled {
		j, closeJournal, err := openJournal(ctx, cfg.Journal, deviceID, log)
		if err != nil {
			return err
		}
		defer closeJournal()
		recorder = j
	} else {
		log.Info("connection journal disabled")
	}

	client, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	client.SetLogger(log)

	var receiveTarget int64
	if cfg.MQTT.Subscribe {
		receiveTarget = int64(cfg.Publish.Count)
	}

	mgr := connection.New(client, connection.Options{
		QoS:           byte(cfg.MQTT.QoS), // #nosec G115 -- validated 1..2
		ReceiveTarget: receiveTarget,
		Recorder:      recorder,
		Logger:        log.Logger,
	})

	log.Info("connecting to MQTT",
		"endpoint", cfg.MQTT.Endpoint,
		"port", cfg.MQTT.BrokerPort(),
		"client_id", cfg.MQTT.ClientID,
		"auth_mode", cfg.MQTT.Auth.Mode,
	)
	if err := mgr.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mgr.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	if cfg.MQTT.Subscribe {
		if err := mgr.Subscribe(cfg.MQTT.Topic); err != nil {
			return fmt.Errorf("subscribing to %s: %w", cfg.MQTT.Topic, err)
		}
		log.Info("subscribed", "topic", cfg.MQTT.Topic)
	}

	var mirror publisher.Mirror
	if cfg.InfluxDB.Enabled {
		m, err := influxdb.Connect(ctx, cfg.InfluxDB, log.Logger)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			m.Close()
			log.Info("InfluxDB mirror closed", "written", m.Written(), "failed", m.Failed())
		}()
		if err := m.HealthCheck(ctx); err != nil {
			return fmt.Errorf("checking InfluxDB: %w", err)
		}
		mirror = m
		log.Info("InfluxDB mirror connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	loop := publisher.New(reader, mgr, publisher.Config{
		Topic:    cfg.MQTT.Topic,
		DeviceID: deviceID,
		Interval: cfg.GetPublishInterval(),
		Count:    cfg.Publish.Count,
	}, mirror, log.Logger)

	runErr := loop.Run(ctx)

	stats := loop.Stats()
	log.Info("envsensor stopped",
		"cycles", stats.Cycles,
		"published", stats.Published,
		"gate_failures", stats.GateFailures,
		"publish_failures", stats.PublishFailures,
		"received", mgr.ReceivedCount(),
	)
	if fault.Fatal(runErr) {
		log.Error("terminating on fatal fault", "error", runErr)
	}
	return runErr
}

// getConfigPath returns ENVSENSOR_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("ENVSENSOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// resolveDeviceID prefers the configured id over the hardware one.
func resolveDeviceID(configured string, hardwareID func() (string, error)) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return hardwareID()
}

// newReader builds the sensor reader and calibrates the gas sensor unless a
// clean-air resistance is configured.
func newReader(ctx context.Context, cfg config.SensorsConfig, board *hardware.Board, log *logging.Logger) (*sensor.Reader, error) {
	gasCfg := sensor.DefaultGasConfig()
	gasCfg.LoadResistance = cfg.Gas.LoadResistance
	gasCfg.CleanAirFactor = cfg.Gas.CleanAirFactor
	gasCfg.CalibrationSamples = cfg.Gas.CalibrationSamples
	gas := sensor.NewGasSensor(board.ADC, gasCfg)

	if cfg.Gas.Ro > 0 {
		gas.SetRo(cfg.Gas.Ro)
		log.Info("gas sensor using configured ro", "ro_kohm", cfg.Gas.Ro)
	} else {
		log.Info("calibrating gas sensor in clean air", "samples", cfg.Gas.CalibrationSamples)
		if err := gas.Calibrate(ctx); err != nil {
			return nil, err
		}
		log.Info("gas sensor calibrated", "ro_kohm", gas.Ro())
	}

	reader, err := sensor.NewReader(sensor.Options{
		Climate:   board.Climate,
		Gas:       gas,
		Light:     board.Light,
		Motion:    board.Motion,
		Indicator: board.LED,
		LightThreshold: sensor.LightThreshold{
			Mode:  sensor.LightMode(cfg.Light.Mode),
			Value: cfg.Light.Threshold,
		},
		ReadTimeout: cfg.ReadTimeout,
		Logger:      log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sensor reader: %w", err)
	}
	return reader, nil
}

// openJournal opens and migrates the journal database. The returned func
// flushes the journal and closes the database.
func openJournal(ctx context.Context, cfg config.JournalConfig, deviceID string, log *logging.Logger) (*journal.Journal, func(), error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: time.Duration(cfg.BusyTimeout) * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal database: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("checking journal database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("connection journal ready",
		"path", cfg.Path,
		"migrations_applied", len(applied),
		"migrations_pending", len(pending),
	)

	repo := journal.NewSQLiteRepository(db.DB)
	if last, err := journal.Latest(ctx, repo); err != nil {
		log.Warn("reading last journal event failed", "error", err)
	} else if last != nil {
		log.Info("previous session ended",
			"state", last.State,
			"detail", last.Detail,
			"at", last.CreatedAt,
		)
	}

	j := journal.New(repo, journal.Options{
		DeviceID: deviceID,
		Logger:   log.Logger,
	})

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := j.Close(ctx); err != nil {
			log.Warn("error flushing journal", "error", err)
		}
		stats := j.Stats()
		log.Info("connection journal closed", "written", stats.Written, "dropped", stats.Dropped)
		if err := db.Close(); err != nil {
			log.Warn("error closing journal database", "error", err)
		}
	}
	return j, closeFn, nil
}
