package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Authentication modes for the MQTT connection.
const (
	// AuthModeMTLS authenticates with an X.509 client certificate.
	AuthModeMTLS = "mtls"

	// AuthModeWebSocket authenticates with a SigV4-signed websocket URL.
	AuthModeWebSocket = "websocket"
)

// Default broker ports per authentication mode.
const (
	defaultMTLSPort      = 8883
	defaultWebSocketPort = 443
)

// Config is the root configuration structure for envsensor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Publish  PublishConfig  `yaml:"publish"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Journal  JournalConfig  `yaml:"journal"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies this device.
type DeviceConfig struct {
	// ID overrides the hardware identifier. Empty uses the first MAC address.
	ID string `yaml:"id"`
}

// MQTTConfig contains MQTT endpoint and session settings.
type MQTTConfig struct {
	Endpoint  string              `yaml:"endpoint"`
	Port      int                 `yaml:"port"`
	ClientID  string              `yaml:"client_id"`
	Topic     string              `yaml:"topic"`
	Subscribe bool                `yaml:"subscribe"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	WebSocket MQTTWebSocketConfig `yaml:"websocket"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTAuthConfig selects the credential mode and its files.
type MQTTAuthConfig struct {
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	RootCA   string `yaml:"root_ca"`
}

// MQTTWebSocketConfig contains settings for signed websocket connections.
type MQTTWebSocketConfig struct {
	Region    string `yaml:"region"`
	ProxyHost string `yaml:"proxy_host"`
	ProxyPort int    `yaml:"proxy_port"`
}

// MQTTReconnectConfig contains transport reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// PublishConfig contains publish loop settings.
type PublishConfig struct {
	// Interval is the pause after a successful publish, in seconds.
	Interval int `yaml:"interval"`

	// Count stops the loop after this many messages. 0 runs forever.
	Count int `yaml:"count"`
}

// SensorsConfig contains sensor wiring and read settings.
type SensorsConfig struct {
	ReadTimeout time.Duration `yaml:"read_timeout"`
	DHT         DHTConfig     `yaml:"dht"`
	Light       LightConfig   `yaml:"light"`
	Motion      MotionConfig  `yaml:"motion"`
	Gas         GasConfig     `yaml:"gas"`
}

// DHTConfig locates the DHT22 exposed by the kernel dht11 IIO driver
// (dtoverlay=dht11,gpiopin=18).
type DHTConfig struct {
	Device string `yaml:"device"`
}

// LightConfig contains light sensor wiring and the boolean threshold.
type LightConfig struct {
	Pin       string  `yaml:"pin"`
	Mode      string  `yaml:"mode"`
	Threshold float64 `yaml:"threshold"`
}

// MotionConfig contains PIR and indicator LED wiring.
type MotionConfig struct {
	Pin          string `yaml:"pin"`
	IndicatorPin string `yaml:"indicator_pin"`
}

// GasConfig contains MQ-2 and ADS1115 settings.
type GasConfig struct {
	I2CBus             string  `yaml:"i2c_bus"`
	Address            uint16  `yaml:"address"`
	Channel            int     `yaml:"channel"`
	VRef               float64 `yaml:"vref"`
	LoadResistance     float64 `yaml:"load_resistance_kohm"`
	CleanAirFactor     float64 `yaml:"clean_air_factor"`
	CalibrationSamples int     `yaml:"calibration_samples"`
	// Ro skips calibration when set (kOhm).
	Ro float64 `yaml:"ro_kohm"`
}

// JournalConfig contains settings for the SQLite connection event journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains settings for the optional telemetry mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ENVSENSOR_SECTION_KEY
// For example: ENVSENSOR_MQTT_ENDPOINT, ENVSENSOR_PUBLISH_INTERVAL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			ClientID:  "envsensor",
			Topic:     "envsensor/telemetry",
			QoS:       1,
			KeepAlive: 6,
			Auth: MQTTAuthConfig{
				Mode: AuthModeMTLS,
			},
			WebSocket: MQTTWebSocketConfig{
				Region:    "us-east-1",
				ProxyPort: 8080,
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Publish: PublishConfig{
			Interval: 5,
		},
		Sensors: SensorsConfig{
			ReadTimeout: 2 * time.Second,
			DHT:         DHTConfig{Device: "/sys/bus/iio/devices/iio:device0"},
			Light: LightConfig{
				Pin:  "GPIO24",
				Mode: "equal",
			},
			Motion: MotionConfig{
				Pin:          "GPIO23",
				IndicatorPin: "GPIO25",
			},
			Gas: GasConfig{
				Address:            0x48,
				VRef:               3.3,
				LoadResistance:     5,
				CleanAirFactor:     9.83,
				CalibrationSamples: 50,
			},
		},
		Journal: JournalConfig{
			Path:        "./data/envsensor.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ENVSENSOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device
	if v := os.Getenv("ENVSENSOR_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// MQTT
	if v := os.Getenv("ENVSENSOR_MQTT_ENDPOINT"); v != "" {
		cfg.MQTT.Endpoint = v
	}
	if v := os.Getenv("ENVSENSOR_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("ENVSENSOR_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
	if v := os.Getenv("ENVSENSOR_MQTT_AUTH_MODE"); v != "" {
		cfg.MQTT.Auth.Mode = v
	}
	if v := os.Getenv("ENVSENSOR_MQTT_CERT_FILE"); v != "" {
		cfg.MQTT.Auth.CertFile = v
	}
	if v := os.Getenv("ENVSENSOR_MQTT_KEY_FILE"); v != "" {
		cfg.MQTT.Auth.KeyFile = v
	}
	if v := os.Getenv("ENVSENSOR_MQTT_ROOT_CA"); v != "" {
		cfg.MQTT.Auth.RootCA = v
	}

	// Publish loop
	if v := os.Getenv("ENVSENSOR_PUBLISH_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ENVSENSOR_PUBLISH_INTERVAL %q: %w", v, err)
		}
		cfg.Publish.Interval = n
	}
	if v := os.Getenv("ENVSENSOR_PUBLISH_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ENVSENSOR_PUBLISH_COUNT %q: %w", v, err)
		}
		cfg.Publish.Count = n
	}

	// InfluxDB
	if v := os.Getenv("ENVSENSOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ENVSENSOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
// All problems are reported together in one error.
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Endpoint == "" {
		errs = append(errs, "mqtt.endpoint is required (set ENVSENSOR_MQTT_ENDPOINT)")
	}
	if c.MQTT.ClientID == "" {
		errs = append(errs, "mqtt.client_id is required")
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	} else if strings.ContainsAny(c.MQTT.Topic, "+#") {
		errs = append(errs, "mqtt.topic must not contain wildcards")
	}
	if c.MQTT.QoS < 1 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 1 or 2; telemetry is published at least once")
	}
	if c.MQTT.Port < 0 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.KeepAlive <= 0 {
		errs = append(errs, "mqtt.keep_alive must be positive")
	}
	if c.MQTT.Reconnect.InitialDelay <= 0 || c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect delays must be positive and max_delay >= initial_delay")
	}

	switch c.MQTT.Auth.Mode {
	case AuthModeMTLS:
		if c.MQTT.Auth.CertFile == "" || c.MQTT.Auth.KeyFile == "" {
			errs = append(errs, "mqtt.auth.cert_file and mqtt.auth.key_file are required for mtls")
		}
	case AuthModeWebSocket:
		if c.MQTT.WebSocket.Region == "" {
			errs = append(errs, "mqtt.websocket.region is required for websocket")
		}
		if c.MQTT.WebSocket.ProxyHost != "" && (c.MQTT.WebSocket.ProxyPort < 1 || c.MQTT.WebSocket.ProxyPort > 65535) {
			errs = append(errs, "mqtt.websocket.proxy_port must be between 1 and 65535")
		}
	default:
		errs = append(errs, fmt.Sprintf("mqtt.auth.mode %q must be %q or %q", c.MQTT.Auth.Mode, AuthModeMTLS, AuthModeWebSocket))
	}

	// Publish validation
	if c.Publish.Interval < 0 {
		errs = append(errs, "publish.interval must not be negative")
	}
	if c.Publish.Count < 0 {
		errs = append(errs, "publish.count must not be negative")
	}

	// Sensors validation
	if c.Sensors.ReadTimeout <= 0 {
		errs = append(errs, "sensors.read_timeout must be positive")
	}
	switch c.Sensors.Light.Mode {
	case "equal", "above":
	default:
		errs = append(errs, fmt.Sprintf("sensors.light.mode %q must be \"equal\" or \"above\"", c.Sensors.Light.Mode))
	}
	if c.Sensors.Gas.Channel < 0 || c.Sensors.Gas.Channel > 3 {
		errs = append(errs, "sensors.gas.channel must be between 0 and 3")
	}
	if c.Sensors.Gas.VRef <= 0 {
		errs = append(errs, "sensors.gas.vref must be positive")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerPort returns the configured port, or the default for the auth mode.
func (m MQTTConfig) BrokerPort() int {
	if m.Port != 0 {
		return m.Port
	}
	if m.Auth.Mode == AuthModeWebSocket {
		return defaultWebSocketPort
	}
	return defaultMTLSPort
}

// GetPublishInterval returns the publish interval as a Duration.
func (c *Config) GetPublishInterval() time.Duration {
	return time.Duration(c.Publish.Interval) * time.Second
}

// GetKeepAlive returns the keep-alive as a Duration.
func (m MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(m.KeepAlive) * time.Second
}
