// Package config loads and validates the engine configuration from a YAML
// or JSON file with optional RELAY_ environment overrides, and serves it to
// components through a hot-reloadable Store.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/haulnet/relay/core/candidate"
	"github.com/haulnet/relay/core/hubs"
	"github.com/haulnet/relay/core/optimize"
	"github.com/haulnet/relay/core/registry"
	"github.com/haulnet/relay/core/relay"
	"github.com/haulnet/relay/core/score"
	"github.com/haulnet/relay/infra/mqtt"
)

// Config is the root configuration of the matching engine.
type Config struct {
	MQTT      mqtt.Config      `json:"mqtt"`
	Match     candidate.Config `json:"match"`
	Score     score.Config     `json:"score"`
	Relay     relay.Config     `json:"relay"`
	Optimizer optimize.Config  `json:"optimizer"`
	Hubs      HubsConfig       `json:"hubs"`
	Forecast  ForecastConfig   `json:"forecast"`
	Metrics   MetricsConfig    `json:"metrics"`
	API       APIConfig        `json:"api"`
}

// HubsConfig couples the selection tuning with the externally vetted
// facility registry and the refresh cadence.
type HubsConfig struct {
	Selection      hubs.Config     `json:"selection"`
	Facilities     []hubs.Facility `json:"facilities"`
	RefreshMinutes int             `json:"refresh_minutes"`
}

// SetDefaults applies sane defaults.
func (c *HubsConfig) SetDefaults() {
	c.Selection.SetDefaults()
	if c.RefreshMinutes <= 0 {
		c.RefreshMinutes = 30
	}
}

// ForecastConfig selects and configures the demand forecaster.
type ForecastConfig struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Component converts to the registry form.
func (c ForecastConfig) Component() registry.Component {
	return registry.Component{Type: c.Type, Conf: c.Conf}
}

// MetricsConfig configures the sink set and the Prometheus scrape endpoint.
type MetricsConfig struct {
	Sinks    []registry.Component `json:"sinks"`
	PromAddr string               `json:"prom_addr"`
}

// APIConfig configures the query HTTP server.
type APIConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	return nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Match.SetDefaults()
	c.Score.SetDefaults()
	c.Relay.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Hubs.SetDefaults()
	c.API.SetDefaults()
}

// Load reads the configuration file, applies RELAY_ environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, RELAY_MQTT__BROKER=... style.
	if err := k.Load(env.Provider("RELAY_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "relay_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
