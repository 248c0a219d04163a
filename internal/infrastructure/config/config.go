package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvFile is the dotenv file loaded before the YAML config, if present.
const EnvFile = ".env"

// Config is the root configuration for the classroom controller.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains broker connection settings and the topics the
// classroom firmware speaks on.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig     `yaml:"broker"`
	Auth      MQTTAuthConfig       `yaml:"auth"`
	QoS       int                  `yaml:"qos"`
	Reconnect MQTTReconnectConfig  `yaml:"reconnect"`
	Topics    MQTTTopicsConfig     `yaml:"topics"`
	Embedded  EmbeddedBrokerConfig `yaml:"embedded"`
}

// MQTTBrokerConfig locates the broker.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig holds broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig holds reconnect timings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// MQTTTopicsConfig names the telemetry and control topics.
type MQTTTopicsConfig struct {
	Telemetry string `yaml:"telemetry"`
	Control   string `yaml:"control"`
}

// EmbeddedBrokerConfig runs an in-process broker for bench setups where no
// external broker exists.
type EmbeddedBrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	Dashboard DashboardConfig  `yaml:"dashboard"`
}

// APITimeoutConfig holds HTTP timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists allowed cross-origin callers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DashboardConfig controls the wall panel served at /. Dir, when set and
// present, replaces the embedded assets.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// WebSocketConfig contains live feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains optional time-series export settings.
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

// SchedulerConfig tunes the automation scheduler loop.
type SchedulerConfig struct {
	TickIntervalMS       int `yaml:"tick_interval_ms"`
	LedgerRetentionHours int `yaml:"ledger_retention_hours"`
	FiringLogSize        int `yaml:"firing_log_size"`
}

// TelemetryConfig controls what happens to ingested device reports.
type TelemetryConfig struct {
	// PersistOnTheHour stores only reports stamped at minute 0.
	PersistOnTheHour bool `yaml:"persist_on_the_hour"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	AuthEnabled bool             `yaml:"auth_enabled"`
	JWT         JWTConfig        `yaml:"jwt"`
	Operators   []OperatorConfig `yaml:"operators"`
}

// JWTConfig contains token settings. AccessTokenTTL is in minutes.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// OperatorConfig is a statically configured API account.
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// Load builds the configuration from defaults, then the YAML file at path,
// then CLASSROOM_* environment variables, and validates the result.
//
// A .env file in the working directory is loaded into the process
// environment first. A missing .env is not an error, and variables already
// set in the environment win over it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", EnvFile, err)
	}

	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
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
		Site: SiteConfig{
			ID:       "classroom-001",
			Name:     "Classroom",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/classroom.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "classroom-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				Telemetry: "dataUpdate",
				Control:   "setControl",
			},
			Embedded: EmbeddedBrokerConfig{
				Address: ":1883",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Dashboard: DashboardConfig{
				Enabled: true,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Scheduler: SchedulerConfig{
			TickIntervalMS:       1000,
			LedgerRetentionHours: 24,
			FiringLogSize:        100,
		},
		Telemetry: TelemetryConfig{
			PersistOnTheHour: true,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides copies CLASSROOM_* variables over file values.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"CLASSROOM_DATABASE_PATH":  &cfg.Database.Path,
		"CLASSROOM_MQTT_HOST":      &cfg.MQTT.Broker.Host,
		"CLASSROOM_MQTT_USERNAME":  &cfg.MQTT.Auth.Username,
		"CLASSROOM_MQTT_PASSWORD":  &cfg.MQTT.Auth.Password,
		"CLASSROOM_API_HOST":       &cfg.API.Host,
		"CLASSROOM_INFLUXDB_TOKEN": &cfg.InfluxDB.Token,
		"CLASSROOM_JWT_SECRET":     &cfg.Security.JWT.Secret,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CLASSROOM_MQTT_PORT": &cfg.MQTT.Broker.Port,
		"CLASSROOM_API_PORT":  &cfg.API.Port,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a known zone", c.Site.Timezone))
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Telemetry == "" || c.MQTT.Topics.Control == "" {
		errs = append(errs, "mqtt.topics.telemetry and mqtt.topics.control are required")
	}
	if c.MQTT.Embedded.Enabled && c.MQTT.Embedded.Address == "" {
		errs = append(errs, "mqtt.embedded.address is required when the embedded broker is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Scheduler.TickIntervalMS <= 0 {
		errs = append(errs, "scheduler.tick_interval_ms must be positive")
	}
	if c.Scheduler.LedgerRetentionHours <= 0 {
		errs = append(errs, "scheduler.ledger_retention_hours must be positive")
	}
	if c.Scheduler.FiringLogSize < 0 {
		errs = append(errs, "scheduler.firing_log_size must not be negative")
	}

	errs = append(errs, c.Security.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s SecurityConfig) validate() []string {
	if !s.AuthEnabled {
		return nil
	}

	var errs []string
	const minJWTSecretLength = 32
	switch {
	case s.JWT.Secret == "":
		errs = append(errs, "security.jwt.secret is required when auth is enabled (set CLASSROOM_JWT_SECRET)")
	case len(s.JWT.Secret) < minJWTSecretLength:
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}
	if s.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}
	if len(s.Operators) == 0 {
		errs = append(errs, "security.operators must list at least one account when auth is enabled")
	}

	seen := make(map[string]bool, len(s.Operators))
	for i, op := range s.Operators {
		if op.Username == "" {
			errs = append(errs, fmt.Sprintf("security.operators[%d].username is required", i))
		} else if seen[op.Username] {
			errs = append(errs, fmt.Sprintf("security.operators[%d].username %q is duplicated", i, op.Username))
		}
		seen[op.Username] = true
		if op.PasswordHash == "" {
			errs = append(errs, fmt.Sprintf("security.operators[%d].password_hash is required", i))
		}
		switch op.Role {
		case "viewer", "operator", "admin":
		default:
			errs = append(errs, fmt.Sprintf("security.operators[%d].role %q must be viewer, operator or admin", i, op.Role))
		}
	}
	return errs
}

// ReadTimeout returns the API read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// TickInterval returns the scheduler tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalMS) * time.Millisecond
}

// LedgerRetention returns how long firing records are kept.
func (c *Config) LedgerRetention() time.Duration {
	return time.Duration(c.Scheduler.LedgerRetentionHours) * time.Hour
}

// Location returns the site's time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
