package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml.
type Config struct {
	Cloud     CloudConfig     `yaml:"cloud"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Devices   DevicesConfig   `yaml:"devices"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CloudConfig contains the account settings used to fetch the device manifest.
type CloudConfig struct {
	BaseURL  string `yaml:"base_url"`
	Country  string `yaml:"country"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout int `yaml:"timeout"`
	// InsecureSkipVerify disables TLS certificate verification for the
	// account API. Some regional endpoints serve certificates that fail
	// verification; leave false unless required.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// DiscoveryConfig contains mDNS browsing settings.
type DiscoveryConfig struct {
	ServiceType string `yaml:"service_type"`
	Domain      string `yaml:"domain"`
	// Interface restricts browsing to one network interface. Empty means all.
	Interface string `yaml:"interface"`
	// WaitTimeout is how long startup waits for devices to be discovered (seconds).
	WaitTimeout int `yaml:"wait_timeout"`
}

// MQTTConfig contains settings for the local appliance session.
// Broker host, port and credentials come from discovery and the manifest.
type MQTTConfig struct {
	QoS            int `yaml:"qos"`
	ConnectTimeout int `yaml:"connect_timeout"`
	PublishTimeout int `yaml:"publish_timeout"`
	KeepAlive      int `yaml:"keep_alive"`
}

// DevicesConfig selects which manifest entries are managed.
type DevicesConfig struct {
	// Serials limits the managed devices. Empty means every manifest entry.
	Serials []string `yaml:"serials"`
}

// DatabaseConfig contains SQLite settings for state history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	CORS      CORSConfig       `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the API. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// envPrefix starts every environment override.
const envPrefix = "DYSONLINK_"

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path, then DYSONLINK_* environment variables. The
// result is validated before it is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			BaseURL: "https://api.cp.dyson.com",
			Country: "GB",
			Timeout: 30,
		},
		Discovery: DiscoveryConfig{
			ServiceType: "_dyson_mqtt._tcp",
			Domain:      "local.",
			WaitTimeout: 10,
		},
		MQTT: MQTTConfig{QoS: 1, ConnectTimeout: 10, PublishTimeout: 5, KeepAlive: 60},
		Database: DatabaseConfig{
			Path:        "./data/dysonlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{BatchSize: 100, FlushInterval: 10},
		API: APIConfig{
			Enabled:   true,
			Host:      "127.0.0.1",
			Port:      8080,
			Timeouts:  APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
			WebSocket: WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// stringOverrides maps environment suffixes onto string fields. Secrets
// belong here rather than in the file.
func stringOverrides(cfg *Config) map[string]*string {
	return map[string]*string{
		"CLOUD_EMAIL":         &cfg.Cloud.Email,
		"CLOUD_PASSWORD":      &cfg.Cloud.Password,
		"CLOUD_COUNTRY":       &cfg.Cloud.Country,
		"DISCOVERY_INTERFACE": &cfg.Discovery.Interface,
		"DATABASE_PATH":       &cfg.Database.Path,
		"API_HOST":            &cfg.API.Host,
		"INFLUXDB_TOKEN":      &cfg.InfluxDB.Token,
		"LOGGING_LEVEL":       &cfg.Logging.Level,
	}
}

// applyEnvOverrides copies every non-empty DYSONLINK_* variable into cfg.
func applyEnvOverrides(cfg *Config) error {
	for suffix, field := range stringOverrides(cfg) {
		if v := os.Getenv(envPrefix + suffix); v != "" {
			*field = v
		}
	}

	if v := os.Getenv(envPrefix + "API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sAPI_PORT: %w", envPrefix, err)
		}
		cfg.API.Port = port
	}
	return nil
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var problems []error
	check := func(bad bool, msg string) {
		if bad {
			problems = append(problems, errors.New(msg))
		}
	}

	check(c.Cloud.BaseURL == "", "cloud.base_url is required")
	check(c.Cloud.Email == "", "cloud.email is required (set "+envPrefix+"CLOUD_EMAIL)")
	check(c.Cloud.Password == "", "cloud.password is required (set "+envPrefix+"CLOUD_PASSWORD)")

	check(c.Discovery.ServiceType == "", "discovery.service_type is required")
	check(c.Discovery.WaitTimeout < 0, "discovery.wait_timeout must not be negative")

	check(c.MQTT.QoS < 0 || c.MQTT.QoS > 2, "mqtt.qos must be 0, 1, or 2")

	check(c.Database.Enabled && c.Database.Path == "", "database.path is required when database is enabled")

	check(c.InfluxDB.Enabled && c.InfluxDB.URL == "", "influxdb.url is required when influxdb is enabled")
	check(c.InfluxDB.Enabled && c.InfluxDB.Bucket == "", "influxdb.bucket is required when influxdb is enabled")

	check(c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535), "api.port must be between 1 and 65535")

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: %w", errors.Join(problems...))
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GetDiscoveryWait is discovery.wait_timeout as a Duration.
func (c *Config) GetDiscoveryWait() time.Duration { return seconds(c.Discovery.WaitTimeout) }

// GetCloudTimeout is cloud.timeout as a Duration.
func (c *Config) GetCloudTimeout() time.Duration { return seconds(c.Cloud.Timeout) }

func (c *Config) GetReadTimeout() time.Duration  { return seconds(c.API.Timeouts.Read) }
func (c *Config) GetWriteTimeout() time.Duration { return seconds(c.API.Timeouts.Write) }
func (c *Config) GetIdleTimeout() time.Duration  { return seconds(c.API.Timeouts.Idle) }
