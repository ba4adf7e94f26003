package ism7

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDiscoveryPrefix is the Home Assistant discovery topic prefix.
const DefaultDiscoveryPrefix = "homeassistant"

// Config is the root configuration for the ISM7 bridge.
// Loaded from YAML with environment variable overrides.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// BridgeConfig contains bridge identity and operational settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance.
	// Used in health reporting.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`

	// Catalog is the path of the parameter catalog YAML file.
	// Relative paths are resolved against the config file's directory.
	Catalog string `yaml:"catalog"`

	// QoS is the MQTT quality of service for state and raw topics.
	// Default: 1.
	QoS int `yaml:"qos"`
}

// DiscoveryConfig controls Home Assistant MQTT discovery.
type DiscoveryConfig struct {
	// Enabled turns discovery publishing on.
	Enabled bool `yaml:"enabled"`

	// ID prefixes every unique_id (the installation's discovery ID).
	// Default: bridge.id
	ID string `yaml:"id"`

	// Prefix is the discovery topic prefix.
	// Default: "homeassistant"
	Prefix string `yaml:"prefix"`

	// QoS for discovery documents.
	// Default: 1.
	QoS int `yaml:"qos"`

	// Retain marks discovery documents retained.
	// Default: true.
	Retain bool `yaml:"retain"`
}

// DeviceConfig defines one heating controller.
type DeviceConfig struct {
	// ID is the device identifier used in topics and the API.
	ID string `yaml:"id"`

	// Name is the controller model name (e.g. "CGB-2", "BM-2").
	Name string `yaml:"name"`

	// IP is the address of the ISM7 gateway the controller is reached through.
	IP string `yaml:"ip"`

	// WriteAddress is the bus address write commands are sent to (e.g. "0x35").
	WriteAddress string `yaml:"write_address"`

	// Topic overrides the MQTT base topic of the device.
	// Default: <topic root>/<id>
	Topic string `yaml:"topic"`

	// Parameters lists the PTIDs to expose. Empty means the whole catalog.
	Parameters []int `yaml:"parameters"`
}

// validID matches identifiers safe to embed in a topic segment.
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// LoadConfig reads configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ISM7_BRIDGE_SECTION_KEY
// For example: ISM7_BRIDGE_ID, ISM7_BRIDGE_DISCOVERY_ENABLED
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Bridge.Catalog != "" && !filepath.IsAbs(cfg.Bridge.Catalog) {
		cfg.Bridge.Catalog = filepath.Join(filepath.Dir(path), cfg.Bridge.Catalog)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "ism7-bridge-01",
			HealthInterval: 30,
			QoS:            1,
		},
		Discovery: DiscoveryConfig{
			Prefix: DefaultDiscoveryPrefix,
			QoS:    1,
			Retain: true,
		},
		Devices: []DeviceConfig{},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ISM7_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("ISM7_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}
	if v := os.Getenv("ISM7_BRIDGE_CATALOG"); v != "" {
		cfg.Bridge.Catalog = v
	}

	// Discovery
	if v := os.Getenv("ISM7_BRIDGE_DISCOVERY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Discovery.Enabled = b
		}
	}
	if v := os.Getenv("ISM7_BRIDGE_DISCOVERY_ID"); v != "" {
		cfg.Discovery.ID = v
	}
	if v := os.Getenv("ISM7_BRIDGE_DISCOVERY_PREFIX"); v != "" {
		cfg.Discovery.Prefix = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateDiscovery()...)
	errs = append(errs, c.validateDevices()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateBridge validates bridge settings.
func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	} else if !validID.MatchString(c.Bridge.ID) {
		errs = append(errs, fmt.Sprintf("bridge.id %q may only contain letters, digits, '-' and '_'", c.Bridge.ID))
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	if c.Bridge.Catalog == "" {
		errs = append(errs, "bridge.catalog is required")
	}
	if c.Bridge.QoS < 0 || c.Bridge.QoS > 2 {
		errs = append(errs, "bridge.qos must be 0, 1, or 2")
	}
	return errs
}

// validateDiscovery validates Home Assistant discovery settings.
func (c *Config) validateDiscovery() []string {
	var errs []string
	if !c.Discovery.Enabled {
		return errs
	}
	if c.Discovery.Prefix == "" {
		errs = append(errs, "discovery.prefix is required when discovery is enabled")
	}
	if c.Discovery.QoS < 0 || c.Discovery.QoS > 2 {
		errs = append(errs, "discovery.qos must be 0, 1, or 2")
	}
	return errs
}

// validateDevices validates device configurations.
func (c *Config) validateDevices() []string {
	var errs []string
	deviceIDs := make(map[string]bool)

	if len(c.Devices) == 0 {
		errs = append(errs, "devices must have at least one entry")
	}

	for i, dev := range c.Devices {
		if dev.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
			continue
		}
		if !validID.MatchString(dev.ID) {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q may only contain letters, digits, '-' and '_'", i, dev.ID))
		}
		if deviceIDs[dev.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicate", i, dev.ID))
		}
		deviceIDs[dev.ID] = true

		if dev.Name == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].name is required", i))
		}
		if dev.IP != "" && net.ParseIP(dev.IP) == nil {
			errs = append(errs, fmt.Sprintf("devices[%d].ip %q is invalid", i, dev.IP))
		}
		if strings.ContainsAny(dev.Topic, "#+") {
			errs = append(errs, fmt.Sprintf("devices[%d].topic %q must not contain wildcards", i, dev.Topic))
		}

		seen := make(map[int]bool, len(dev.Parameters))
		for _, ptid := range dev.Parameters {
			if ptid <= 0 {
				errs = append(errs, fmt.Sprintf("devices[%d].parameters contains invalid ptid %d", i, ptid))
			}
			if seen[ptid] {
				errs = append(errs, fmt.Sprintf("devices[%d].parameters lists ptid %d twice", i, ptid))
			}
			seen[ptid] = true
		}
	}

	return errs
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetDiscoveryID returns the discovery ID, defaulting to the bridge ID.
func (c *Config) GetDiscoveryID() string {
	if c.Discovery.ID != "" {
		return c.Discovery.ID
	}
	return c.Bridge.ID
}

// DeviceTopic returns the base topic of a device.
func (d DeviceConfig) DeviceTopic(root string) string {
	if d.Topic != "" {
		return strings.TrimSuffix(d.Topic, "/")
	}
	return root + "/" + d.ID
}
