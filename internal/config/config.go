// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"firestige.xyz/vizor/internal/fragment"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `vizor:` root key in YAML.
type GlobalConfig struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Stream    StreamConfig    `mapstructure:"stream" yaml:"stream"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Codec     CodecConfig     `mapstructure:"codec" yaml:"codec"`
	Source    SourceConfig    `mapstructure:"source" yaml:"source"`
}

// ─── Stream ───

// StreamConfig controls fragmentation and reassembly.
type StreamConfig struct {
	DataLimit          int    `mapstructure:"data_limit" yaml:"data_limit"`                   // max fragment payload bytes
	ReassemblyDeadline string `mapstructure:"reassembly_deadline" yaml:"reassembly_deadline"` // e.g. "500ms"
	SweepInterval      string `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	PollInterval       string `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxGroups          int    `mapstructure:"max_groups" yaml:"max_groups"`
	DropStale          bool   `mapstructure:"drop_stale" yaml:"drop_stale"`
	FirstFrameID       uint32 `mapstructure:"first_frame_id" yaml:"first_frame_id"`
}

// Deadline returns the parsed reassembly deadline.
func (s StreamConfig) Deadline() time.Duration { return mustDuration(s.ReassemblyDeadline) }

// Sweep returns the parsed sweep interval.
func (s StreamConfig) Sweep() time.Duration { return mustDuration(s.SweepInterval) }

// Poll returns the parsed receive poll interval.
func (s StreamConfig) Poll() time.Duration { return mustDuration(s.PollInterval) }

// mustDuration is only used on values ValidateAndApplyDefaults has checked.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ─── Transport ───

// TransportConfig fixes the UDP endpoints of a stream.
type TransportConfig struct {
	LocalPort     int    `mapstructure:"local_port" yaml:"local_port"`
	RemoteAddress string `mapstructure:"remote_address" yaml:"remote_address"`
	RemotePort    int    `mapstructure:"remote_port" yaml:"remote_port"`
	DSCP          int    `mapstructure:"dscp" yaml:"dscp"`               // 0 = unmarked
	ReadBuffer    int    `mapstructure:"read_buffer" yaml:"read_buffer"` // bytes, 0 = OS default
}

// ─── Codec & Source ───

// CodecConfig selects the codec engine.
type CodecConfig struct {
	Name    string         `mapstructure:"name" yaml:"name"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// SourceConfig selects the frame source of the send side.
type SourceConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Width  int    `mapstructure:"width" yaml:"width"`
	Height int    `mapstructure:"height" yaml:"height"`
	FPS    int    `mapstructure:"fps" yaml:"fps"`
	Seed   int64  `mapstructure:"seed" yaml:"seed"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `vizor: ...`.
type configRoot struct {
	Vizor GlobalConfig `mapstructure:"vizor" yaml:"vizor"`
}

// Load loads configuration from path. An empty path yields the defaults.
// Env vars use the VIZOR_ prefix (e.g., VIZOR_STREAM_DATA_LIMIT).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `vizor.` key prefix maps to `VIZOR_` in env vars via the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Vizor

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "vizor." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("vizor.log.level", "info")
	v.SetDefault("vizor.log.format", "text")
	v.SetDefault("vizor.log.outputs.file.enabled", false)
	v.SetDefault("vizor.log.outputs.file.path", "/var/log/vizor/vizor.log")
	v.SetDefault("vizor.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("vizor.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("vizor.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("vizor.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("vizor.metrics.enabled", false)
	v.SetDefault("vizor.metrics.listen", ":9092")
	v.SetDefault("vizor.metrics.path", "/metrics")

	// Stream defaults; 1400 stays under a 1500 byte MTU with headers.
	v.SetDefault("vizor.stream.data_limit", 1400)
	v.SetDefault("vizor.stream.reassembly_deadline", "500ms")
	v.SetDefault("vizor.stream.sweep_interval", "50ms")
	v.SetDefault("vizor.stream.poll_interval", "20ms")
	v.SetDefault("vizor.stream.max_groups", 256)
	v.SetDefault("vizor.stream.drop_stale", false)
	v.SetDefault("vizor.stream.first_frame_id", 0)

	// Transport defaults
	v.SetDefault("vizor.transport.local_port", 0)
	v.SetDefault("vizor.transport.remote_address", "127.0.0.1")
	v.SetDefault("vizor.transport.remote_port", 0)
	v.SetDefault("vizor.transport.dscp", 0)
	v.SetDefault("vizor.transport.read_buffer", 0)

	// Codec & source defaults
	v.SetDefault("vizor.codec.name", "nv12")
	v.SetDefault("vizor.source.name", "pattern")
	v.SetDefault("vizor.source.width", 640)
	v.SetDefault("vizor.source.height", 360)
	v.SetDefault("vizor.source.fps", 30)
	v.SetDefault("vizor.source.seed", 1)
}

// ValidateAndApplyDefaults validates configuration.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Stream validation ──
	if cfg.Stream.DataLimit <= 0 || cfg.Stream.DataLimit > fragment.MaxDataLimit {
		return fmt.Errorf("stream.data_limit %d out of range 1..%d", cfg.Stream.DataLimit, fragment.MaxDataLimit)
	}
	for key, value := range map[string]string{
		"stream.reassembly_deadline": cfg.Stream.ReassemblyDeadline,
		"stream.sweep_interval":      cfg.Stream.SweepInterval,
		"stream.poll_interval":       cfg.Stream.PollInterval,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, value)
		}
	}
	if cfg.Stream.MaxGroups <= 0 {
		return fmt.Errorf("stream.max_groups must be positive, got %d", cfg.Stream.MaxGroups)
	}

	// ── Transport validation ──
	for key, port := range map[string]int{
		"transport.local_port":  cfg.Transport.LocalPort,
		"transport.remote_port": cfg.Transport.RemotePort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s %d out of range 0..65535", key, port)
		}
	}
	if cfg.Transport.DSCP < 0 || cfg.Transport.DSCP > 63 {
		return fmt.Errorf("transport.dscp %d out of range 0..63", cfg.Transport.DSCP)
	}

	// ── Codec & source validation ──
	if cfg.Codec.Name == "" {
		return fmt.Errorf("codec.name is required")
	}
	if cfg.Source.Width <= 0 || cfg.Source.Height <= 0 {
		return fmt.Errorf("source size %dx%d must be positive", cfg.Source.Width, cfg.Source.Height)
	}
	if cfg.Source.FPS <= 0 {
		return fmt.Errorf("source.fps must be positive, got %d", cfg.Source.FPS)
	}

	return nil
}

// Dump renders the effective configuration as YAML.
func Dump(cfg *GlobalConfig) ([]byte, error) {
	return yaml.Marshal(configRoot{Vizor: *cfg})
}
