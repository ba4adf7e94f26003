package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
service:
  id: "heating"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
    client_id: "test-client"
  qos: 1
  topic_root: "wolf"
api:
  host: "127.0.0.1"
  port: 8081
ism7:
  config_file: "/etc/ism7/ism7.yaml"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
  users:
    - username: "admin"
      password_hash: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"
      role: "admin"
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.ID != "heating" {
		t.Errorf("Service.ID = %q, want %q", cfg.Service.ID, "heating")
	}
	if cfg.Service.Name != "ISM7 Bridge" {
		t.Errorf("Service.Name = %q, want default", cfg.Service.Name)
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker = %+v", cfg.MQTT.Broker)
	}
	if cfg.MQTT.TopicRoot != "wolf" {
		t.Errorf("MQTT.TopicRoot = %q, want %q", cfg.MQTT.TopicRoot, "wolf")
	}
	if cfg.ISM7.ConfigFile != "/etc/ism7/ism7.yaml" || !cfg.ISM7.Enabled {
		t.Errorf("ISM7 = %+v", cfg.ISM7)
	}
	if len(cfg.Security.Users) != 1 || cfg.Security.Users[0].Role != "admin" {
		t.Errorf("Security.Users = %+v", cfg.Security.Users)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTestConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
service:
  id: ""
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	_, err := Load(writeTestConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "service.id is required") {
		t.Errorf("error = %v, want service.id message", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults with secret",
			modify: func(*Config) {},
		},
		{
			name:    "missing database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "negative retention",
			modify:  func(c *Config) { c.Database.RetentionDays = -1 },
			wantErr: "database.retention_days must not be negative",
		},
		{
			name:    "invalid qos",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos must be 0, 1, or 2",
		},
		{
			name:    "empty topic root",
			modify:  func(c *Config) { c.MQTT.TopicRoot = "" },
			wantErr: "mqtt.topic_root is required",
		},
		{
			name:    "wildcard topic root",
			modify:  func(c *Config) { c.MQTT.TopicRoot = "ism7/#" },
			wantErr: "mqtt.topic_root must not contain wildcards",
		},
		{
			name:    "ism7 enabled without config file",
			modify:  func(c *Config) { c.ISM7.ConfigFile = "" },
			wantErr: "ism7.config_file is required",
		},
		{
			name:    "trace enabled without path",
			modify:  func(c *Config) { c.Trace.Enabled = true; c.Trace.Path = "" },
			wantErr: "trace.path is required",
		},
		{
			name:    "influxdb enabled without url",
			modify:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Org = "o"; c.InfluxDB.Bucket = "b" },
			wantErr: "influxdb.url is required",
		},
		{
			name:    "invalid api port",
			modify:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port must be between 1 and 65535",
		},
		{
			name:    "tls without certificate",
			modify:  func(c *Config) { c.API.TLS.Enabled = true },
			wantErr: "api.tls.cert_file and api.tls.key_file are required",
		},
		{
			name:    "missing jwt secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "short jwt secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:   "api disabled needs no secret",
			modify: func(c *Config) { c.API.Enabled = false; c.Security.JWT.Secret = "" },
		},
		{
			name: "user with plain password",
			modify: func(c *Config) {
				c.Security.Users = []UserConfig{{Username: "admin", PasswordHash: "secret", Role: "admin"}}
			},
			wantErr: "must be an argon2id hash",
		},
		{
			name: "duplicate user",
			modify: func(c *Config) {
				u := UserConfig{Username: "admin", PasswordHash: "$argon2id$x", Role: "admin"}
				c.Security.Users = []UserConfig{u, u}
			},
			wantErr: `"admin" is duplicate`,
		},
		{
			name: "user without role",
			modify: func(c *Config) {
				c.Security.Users = []UserConfig{{Username: "admin", PasswordHash: "$argon2id$x"}}
			},
			wantErr: "security.users[0].role is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = testSecret
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Service.ID = ""
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "configuration errors: ") {
		t.Errorf("error = %q, want configuration errors prefix", msg)
	}
	for _, want := range []string{"service.id", "database.path", "security.jwt.secret"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error = %q, missing %q", msg, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %vs, want 30s", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 30 {
		t.Errorf("GetWriteTimeout() = %vs, want 30s", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %vs, want 60s", got)
	}
	if got := cfg.GetRetention().Hours(); got != 30*24 {
		t.Errorf("GetRetention() = %vh, want 720h", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ISM7BRIDGE_DATABASE_PATH", "/data/env.db")
	t.Setenv("ISM7BRIDGE_MQTT_HOST", "mqtt.env")
	t.Setenv("ISM7BRIDGE_MQTT_PORT", "8883")
	t.Setenv("ISM7BRIDGE_MQTT_USERNAME", "bridge")
	t.Setenv("ISM7BRIDGE_MQTT_PASSWORD", "pw")
	t.Setenv("ISM7BRIDGE_MQTT_TOPIC_ROOT", "wolf")
	t.Setenv("ISM7BRIDGE_API_HOST", "127.0.0.1")
	t.Setenv("ISM7BRIDGE_INFLUXDB_TOKEN", "influx-token")
	t.Setenv("ISM7BRIDGE_LOG_LEVEL", "debug")
	t.Setenv("ISM7BRIDGE_ISM7_CONFIG_FILE", "/etc/ism7.yaml")
	t.Setenv("ISM7BRIDGE_JWT_SECRET", testSecret)

	t.Setenv("ISM7BRIDGE_TRACE_ENABLED", "true")

	cfg := defaultConfig()
	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Database.Path", cfg.Database.Path, "/data/env.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.env"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "bridge"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "pw"},
		{"MQTT.TopicRoot", cfg.MQTT.TopicRoot, "wolf"},
		{"API.Host", cfg.API.Host, "127.0.0.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "influx-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
		{"ISM7.ConfigFile", cfg.ISM7.ConfigFile, "/etc/ism7.yaml"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, testSecret},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if !cfg.Trace.Enabled {
		t.Error("Trace.Enabled should be set from the environment")
	}
}

func TestApplyEnvOverrides_Invalid(t *testing.T) {
	t.Setenv("ISM7BRIDGE_MQTT_PORT", "not-a-port")
	t.Setenv("ISM7BRIDGE_TRACE_ENABLED", "sometimes")

	cfg := defaultConfig()
	err := applyEnvOverrides(cfg)
	if err == nil {
		t.Fatal("applyEnvOverrides() should fail")
	}
	for _, name := range []string{"ISM7BRIDGE_MQTT_PORT", "ISM7BRIDGE_TRACE_ENABLED"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeTestConfig(t, "mqtt:\n  topic_rot: wolf\n")
	t.Setenv("ISM7BRIDGE_JWT_SECRET", testSecret)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "topic_rot") {
		t.Errorf("Load() error = %v, want unknown field topic_rot", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Service.ID != "ism7-bridge" {
		t.Errorf("Service.ID = %q, want ism7-bridge", cfg.Service.ID)
	}
	if cfg.MQTT.TopicRoot != "ism7" {
		t.Errorf("MQTT.TopicRoot = %q, want ism7", cfg.MQTT.TopicRoot)
	}
	if !cfg.API.Enabled || cfg.API.Port != 8080 {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Trace.Enabled {
		t.Error("Trace should be disabled by default")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Security.JWT.AccessTokenTTL != 60 {
		t.Errorf("AccessTokenTTL = %d, want 60", cfg.Security.JWT.AccessTokenTTL)
	}
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.Auth.Password = "mqtt-password"
	cfg.InfluxDB.Token = "influx-token"
	cfg.Security.JWT.Secret = testSecret
	cfg.Security.Users = []UserConfig{{Username: "admin", PasswordHash: "$argon2id$hash", Role: "admin"}}

	out := cfg.String()
	for _, secret := range []string{"mqtt-password", "influx-token", testSecret, "$argon2id$hash"} {
		if strings.Contains(out, secret) {
			t.Errorf("String() leaks %q", secret)
		}
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("String() should mark redacted values")
	}
	if cfg.Security.Users[0].PasswordHash != "$argon2id$hash" {
		t.Error("String() must not modify the original config")
	}
}
