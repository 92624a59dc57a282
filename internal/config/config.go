// Package config loads simulator settings from TOML or YAML files and
// CELLSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/signalsfoundry/cellular-simulator/core"
	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"github.com/signalsfoundry/cellular-simulator/internal/observability"
	"github.com/signalsfoundry/cellular-simulator/protocol"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Traffic models understood by the simulation runner.
const (
	TrafficPattern = "pattern"
	TrafficPoisson = "poisson"
)

// Config is the full simulator configuration.
type Config struct {
	Simulation Simulation                  `toml:"simulation" yaml:"simulation"`
	Traffic    Traffic                     `toml:"traffic" yaml:"traffic"`
	Limits     Limits                      `toml:"limits" yaml:"limits"`
	Logging    logging.Config              `toml:"logging" yaml:"logging"`
	Tracing    observability.TracingConfig `toml:"tracing" yaml:"tracing"`
	Server     Server                      `toml:"server" yaml:"server"`
}

// Simulation selects the protocol and the size of one run.
type Simulation struct {
	// Protocol is anything protocol.ParseKind accepts ("2g", "4", "custom").
	Protocol string                `toml:"protocol" yaml:"protocol"`
	Custom   protocol.CustomParams `toml:"custom" yaml:"custom"`
	// OverheadPercent reduces device capacity and is reported as the
	// overhead share of the run. It also becomes the custom protocol's
	// overhead percentage.
	OverheadPercent int `toml:"overhead_percent" yaml:"overhead_percent"`
	Messages        int `toml:"messages" yaml:"messages"`
	// RosterFile, when set, replaces generated devices with "id,K" rows.
	RosterFile string `toml:"roster_file" yaml:"roster_file"`
}

// Traffic selects how messages are produced.
type Traffic struct {
	Model     string `toml:"model" yaml:"model"`
	Producers int    `toml:"producers" yaml:"producers"`
	// Poisson model only.
	RatePerSecond float64 `toml:"rate_per_second" yaml:"rate_per_second"`
	VoiceRatio    float64 `toml:"voice_ratio" yaml:"voice_ratio"`
	Seed          string  `toml:"seed" yaml:"seed"`
}

// Limits are the structural bounds of towers and coordinators.
type Limits struct {
	MaxTowers          int `toml:"max_towers" yaml:"max_towers"`
	MaxDevicesPerTower int `toml:"max_devices_per_tower" yaml:"max_devices_per_tower"`
	MaxMessages        int `toml:"max_messages" yaml:"max_messages"`
	MaxPayloadBytes    int `toml:"max_payload_bytes" yaml:"max_payload_bytes"`
}

// Server configures cellsim-server.
type Server struct {
	GRPCAddr      string        `toml:"grpc_addr" yaml:"grpc_addr"`
	HTTPAddr      string        `toml:"http_addr" yaml:"http_addr"`
	DrainInterval time.Duration `toml:"drain_interval" yaml:"drain_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Simulation: Simulation{
			Protocol: "4g",
			Messages: 1000,
		},
		Traffic: Traffic{
			Model:         TrafficPattern,
			Producers:     1,
			RatePerSecond: 100,
			VoiceRatio:    0.25,
			Seed:          "cellsim",
		},
		Limits: Limits{
			MaxTowers:          core.DefaultMaxTowers,
			MaxDevicesPerTower: core.DefaultMaxDevices,
			MaxMessages:        core.DefaultMaxMessages,
			MaxPayloadBytes:    core.DefaultMaxPayload,
		},
		Logging: logging.Config{Level: "info", Format: "text"},
		Tracing: observability.DefaultTracingConfig(),
		Server: Server{
			GRPCAddr:      ":50051",
			HTTPAddr:      ":8080",
			DrainInterval: time.Second,
		},
	}
}

// Load reads path on top of Default. The decoder is chosen by extension:
// .toml, or .yaml/.yml. Keys absent from the file keep their defaults and
// unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return Config{}, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("load config %s: unsupported extension %q (want .toml, .yaml or .yml)", path, filepath.Ext(path))
	}
	return cfg, nil
}

// Environment variables read by ApplyEnv, besides the logging and tracing
// ones.
const (
	EnvProtocol        = "CELLSIM_PROTOCOL"
	EnvMessages        = "CELLSIM_MESSAGES"
	EnvOverheadPercent = "CELLSIM_OVERHEAD_PERCENT"
	EnvRosterFile      = "CELLSIM_ROSTER_FILE"
	EnvTrafficModel    = "CELLSIM_TRAFFIC_MODEL"
	EnvProducers       = "CELLSIM_PRODUCERS"
	EnvGRPCAddr        = "CELLSIM_GRPC_ADDR"
	EnvHTTPAddr        = "CELLSIM_HTTP_ADDR"
	EnvDrainInterval   = "CELLSIM_DRAIN_INTERVAL"
)

// ApplyEnv overrides cfg from CELLSIM_* variables. A malformed numeric or
// duration value is an error rather than being silently ignored.
func (cfg *Config) ApplyEnv() error {
	if v := os.Getenv(EnvProtocol); v != "" {
		cfg.Simulation.Protocol = v
	}
	if v := os.Getenv(EnvRosterFile); v != "" {
		cfg.Simulation.RosterFile = v
	}
	if v := os.Getenv(EnvTrafficModel); v != "" {
		cfg.Traffic.Model = strings.ToLower(v)
	}
	if v := os.Getenv(EnvGRPCAddr); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv(logging.EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(logging.EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	cfg.Tracing.ApplyEnv()

	ints := []struct {
		key string
		dst *int
	}{
		{EnvMessages, &cfg.Simulation.Messages},
		{EnvOverheadPercent, &cfg.Simulation.OverheadPercent},
		{EnvProducers, &cfg.Traffic.Producers},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v := os.Getenv(EnvDrainInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDrainInterval, err)
		}
		cfg.Server.DrainInterval = d
	}
	return nil
}

// Validate reports every problem in cfg at once. The overhead percentage
// is not checked here because it is clamped into [0,100] where it is used.
func (cfg Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	kind, err := protocol.ParseKind(cfg.Simulation.Protocol)
	if err != nil {
		add("simulation.protocol: %w", err)
	} else if kind == protocol.KindCustom {
		c := cfg.Simulation.Custom
		if _, err := protocol.NewCustom(c.UsersPerChannel, c.ChannelBandwidth, c.TotalSpectrum); err != nil {
			add("simulation.custom: %w", err)
		}
	}
	if cfg.Simulation.Messages < 0 {
		add("simulation.messages must not be negative, got %d", cfg.Simulation.Messages)
	}

	switch cfg.Traffic.Model {
	case TrafficPattern:
	case TrafficPoisson:
		if cfg.Traffic.RatePerSecond <= 0 {
			add("traffic.rate_per_second must be positive, got %v", cfg.Traffic.RatePerSecond)
		}
		if cfg.Traffic.VoiceRatio < 0 || cfg.Traffic.VoiceRatio > 1 {
			add("traffic.voice_ratio must be within [0,1], got %v", cfg.Traffic.VoiceRatio)
		}
	default:
		add("traffic.model %q is not %q or %q", cfg.Traffic.Model, TrafficPattern, TrafficPoisson)
	}
	if cfg.Traffic.Producers < 1 {
		add("traffic.producers must be at least 1, got %d", cfg.Traffic.Producers)
	}

	limits := []struct {
		name string
		v    int
	}{
		{"limits.max_towers", cfg.Limits.MaxTowers},
		{"limits.max_devices_per_tower", cfg.Limits.MaxDevicesPerTower},
		{"limits.max_messages", cfg.Limits.MaxMessages},
		{"limits.max_payload_bytes", cfg.Limits.MaxPayloadBytes},
	}
	for _, l := range limits {
		if l.v <= 0 {
			add("%s must be positive, got %d", l.name, l.v)
		}
	}

	if cfg.Server.DrainInterval <= 0 {
		add("server.drain_interval must be positive, got %s", cfg.Server.DrainInterval)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
