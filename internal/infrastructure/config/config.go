package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the ISM7 bridge service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	ISM7      ISM7Config      `yaml:"ism7"`
	Trace     TraceConfig     `yaml:"trace"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServiceConfig identifies this service instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays bounds the reading history. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicRoot prefixes every topic of the service (raw feed, acks, health,
	// system status and default device topics).
	TopicRoot string `yaml:"topic_root"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`

	// CAFile is a PEM bundle used instead of the system roots when TLS is on.
	CAFile string `yaml:"ca_file"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ISM7Config points at the bridge configuration (devices, catalog, discovery).
type ISM7Config struct {
	Enabled    bool   `yaml:"enabled"`
	ConfigFile string `yaml:"config_file"`
}

// TraceConfig controls raw telegram capture.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT   JWTConfig    `yaml:"jwt"`
	Users []UserConfig `yaml:"users"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// UserConfig is an API account. PasswordHash is an Argon2id PHC string
// (generate with "ism7bridge hash-password").
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// minJWTSecretLength is the shortest accepted signing secret.
const minJWTSecretLength = 32

// Load reads path, applies ISM7BRIDGE_* environment overrides and
// validates the result.
//
// Precedence is defaults, then the file, then the environment. Unknown
// keys in the file are errors, so a misspelt setting cannot silently fall
// back to its default.
//
// Parameters:
//   - path: YAML configuration file
//
// Returns:
//   - *Config: Validated configuration
//   - error: Read, parse, override or validation failure
func Load(path string) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "ism7-bridge",
			Name: "ISM7 Bridge",
		},
		Database: DatabaseConfig{
			Path:          "./data/ism7bridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ism7-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicRoot: "ism7",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
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
		ISM7: ISM7Config{
			Enabled:    true,
			ConfigFile: "configs/ism7.yaml",
		},
		Trace: TraceConfig{
			Path: "./data/telegrams.cbor",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// envPrefix starts every override variable, e.g. ISM7BRIDGE_MQTT_HOST.
const envPrefix = "ISM7BRIDGE_"

func setString(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", v)
		}
		*dst = b
		return nil
	}
}

// envOverrides lists the settings that can come from the environment,
// keyed by the variable name without envPrefix.
func envOverrides(cfg *Config) map[string]func(string) error {
	return map[string]func(string) error{
		"DATABASE_PATH":    setString(&cfg.Database.Path),
		"MQTT_HOST":        setString(&cfg.MQTT.Broker.Host),
		"MQTT_PORT":        setInt(&cfg.MQTT.Broker.Port),
		"MQTT_USERNAME":    setString(&cfg.MQTT.Auth.Username),
		"MQTT_PASSWORD":    setString(&cfg.MQTT.Auth.Password),
		"MQTT_TOPIC_ROOT":  setString(&cfg.MQTT.TopicRoot),
		"API_HOST":         setString(&cfg.API.Host),
		"API_PORT":         setInt(&cfg.API.Port),
		"INFLUXDB_ENABLED": setBool(&cfg.InfluxDB.Enabled),
		"INFLUXDB_URL":     setString(&cfg.InfluxDB.URL),
		"INFLUXDB_TOKEN":   setString(&cfg.InfluxDB.Token),
		"LOG_LEVEL":        setString(&cfg.Logging.Level),
		"ISM7_CONFIG_FILE": setString(&cfg.ISM7.ConfigFile),
		"TRACE_ENABLED":    setBool(&cfg.Trace.Enabled),
		"JWT_SECRET":       setString(&cfg.Security.JWT.Secret),
	}
}

// applyEnvOverrides copies set, non-empty ISM7BRIDGE_* variables into cfg.
// All malformed values are reported together.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for name, set := range envOverrides(cfg) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			continue
		}
		if err := set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicRoot == "" {
		errs = append(errs, "mqtt.topic_root is required")
	} else if strings.ContainsAny(c.MQTT.TopicRoot, "#+") {
		errs = append(errs, "mqtt.topic_root must not contain wildcards")
	}

	if c.ISM7.Enabled && c.ISM7.ConfigFile == "" {
		errs = append(errs, "ism7.config_file is required when ism7 is enabled")
	}

	if c.Trace.Enabled && c.Trace.Path == "" {
		errs = append(errs, "trace.path is required when trace is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.API.Enabled {
		errs = append(errs, c.validateAPI()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateAPI checks the API and its security settings.
// The JWT secret guards parameter writes to the heating controller, so an
// empty or short secret is rejected.
func (c *Config) validateAPI() []string {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set ISM7BRIDGE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	seen := make(map[string]bool, len(c.Security.Users))
	for i, u := range c.Security.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Sprintf("security.users[%d].username is required", i))
			continue
		}
		if seen[u.Username] {
			errs = append(errs, fmt.Sprintf("security.users[%d].username %q is duplicate", i, u.Username))
		}
		seen[u.Username] = true
		if !strings.HasPrefix(u.PasswordHash, "$argon2id$") {
			errs = append(errs, fmt.Sprintf("security.users[%d].password_hash must be an argon2id hash", i))
		}
		if u.Role == "" {
			errs = append(errs, fmt.Sprintf("security.users[%d].role is required", i))
		}
	}

	return errs
}

// String returns a printable form of the configuration with secrets redacted.
func (c *Config) String() string {
	redacted := *c
	redacted.MQTT.Auth.Password = redact(c.MQTT.Auth.Password)
	redacted.InfluxDB.Token = redact(c.InfluxDB.Token)
	redacted.Security.JWT.Secret = redact(c.Security.JWT.Secret)
	redacted.Security.Users = make([]UserConfig, len(c.Security.Users))
	for i, u := range c.Security.Users {
		u.PasswordHash = redact(u.PasswordHash)
		redacted.Security.Users[i] = u
	}

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[REDACTED]"
}

// GetRetention returns the reading history retention, 0 for unlimited.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
