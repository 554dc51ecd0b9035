// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/skalabs/stationdaq/internal/core"
)

// Config is the top-level static configuration. The YAML file uses
// `stationdaq:` as its root key; environment variable overrides use a
// STATIONDAQ_ prefix (e.g. STATIONDAQ_LOG_LEVEL).
type Config struct {
	Ingress      IngressConfig      `mapstructure:"ingress"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Raw          RawStreamConfig    `mapstructure:"raw"`
	BurstChannel ChannelStreamConfig `mapstructure:"burst_channel"`
	ContinuousChannel ChannelStreamConfig `mapstructure:"continuous_channel"`
	IntegratedChannel ChannelStreamConfig `mapstructure:"integrated_channel"`
	BurstBeam    BeamStreamConfig   `mapstructure:"burst_beam"`
	IntegratedBeam BeamStreamConfig `mapstructure:"integrated_beam"`
	StationBeam  StationBeamConfig  `mapstructure:"station_beam"`
	AntennaBuffer AntennaBufferConfig `mapstructure:"antenna_buffer"`
	Correlator   CorrelatorConfig   `mapstructure:"correlator"`
}

// IngressConfig configures the kernel-bypass packet receiver.
type IngressConfig struct {
	Interface      string `mapstructure:"interface"`
	IP             string `mapstructure:"ip"`
	FrameSize      int    `mapstructure:"frame_size"`
	FramesPerBlock int    `mapstructure:"frames_per_block"`
	NofBlocks      int    `mapstructure:"nof_blocks"`
	NofThreads     int    `mapstructure:"nof_threads"`
	Promiscuous    bool   `mapstructure:"promiscuous"`
}

// LogConfig configures the slog/lumberjack logging pipeline.
type LogConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures lumberjack-backed log file rotation.
type FileOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// RawStreamConfig covers §6's raw-stream configuration keys.
type RawStreamConfig struct {
	Port             int `mapstructure:"port"`
	NofAntennas      int `mapstructure:"nof_antennas"`
	SamplesPerBuffer int `mapstructure:"samples_per_buffer"`
	NofTiles         int `mapstructure:"nof_tiles"`
	NofPols          int `mapstructure:"nof_pols"`
	MaxPacketSize    int `mapstructure:"max_packet_size"`
}

// ChannelStreamConfig covers burst/continuous/integrated channel keys.
type ChannelStreamConfig struct {
	Port           int    `mapstructure:"port"`
	NofTiles       int    `mapstructure:"nof_tiles"`
	NofChannels    int    `mapstructure:"nof_channels"`
	NofSamples     int    `mapstructure:"nof_samples"`
	NofAntennas    int    `mapstructure:"nof_antennas"`
	NofPols        int    `mapstructure:"nof_pols"`
	MaxPacketSize  int    `mapstructure:"max_packet_size"`
	NofBufferSkips int    `mapstructure:"nof_buffer_skips"`
	StartTime      string `mapstructure:"start_time"`
}

// BeamStreamConfig covers burst/integrated beam keys.
type BeamStreamConfig struct {
	Port          int `mapstructure:"port"`
	NofTiles      int `mapstructure:"nof_tiles"`
	NofChannels   int `mapstructure:"nof_channels"`
	NofSamples    int `mapstructure:"nof_samples"`
	NofPols       int `mapstructure:"nof_pols"`
	NofBeams      int `mapstructure:"nof_beams"`
	MaxPacketSize int `mapstructure:"max_packet_size"`
}

// StationBeamConfig covers the station-beam capture keys.
type StationBeamConfig struct {
	Port               int    `mapstructure:"port"`
	StartChannel       int    `mapstructure:"start_channel"`
	NofChannels        int    `mapstructure:"nof_channels"`
	NofSamples         int    `mapstructure:"nof_samples"`
	TransposeSamples   bool   `mapstructure:"transpose_samples"`
	MaxPacketSize      int    `mapstructure:"max_packet_size"`
	CaptureStartTime   string `mapstructure:"capture_start_time"`
	LegacyCounterShift bool   `mapstructure:"legacy_counter_shift"`
	MaxFileSizeBytes   int64  `mapstructure:"max_file_size_bytes"`
	Directory          string `mapstructure:"directory"`
	Dada               bool   `mapstructure:"dada"`
	IndividualChannels bool   `mapstructure:"individual_channels"`
}

// AntennaBufferConfig covers the antenna-buffer keys.
type AntennaBufferConfig struct {
	Port          int `mapstructure:"port"`
	NofAntennas   int `mapstructure:"nof_antennas"`
	NofSamples    int `mapstructure:"nof_samples"`
	NofTiles      int `mapstructure:"nof_tiles"`
	MaxPacketSize int `mapstructure:"max_packet_size"`
}

// CorrelatorConfig covers the correlator handoff keys (the correlator
// kernel itself is out of scope; only the interface into it lives here).
type CorrelatorConfig struct {
	Port            int `mapstructure:"port"`
	NofAntennas     int `mapstructure:"nof_antennas"`
	NofChannels     int `mapstructure:"nof_channels"`
	NofFineChannels int `mapstructure:"nof_fine_channels"`
	NofTiles        int `mapstructure:"nof_tiles"`
	NofSamples      int `mapstructure:"nof_samples"`
	NofPols         int `mapstructure:"nof_pols"`
	MaxPacketSize   int `mapstructure:"max_packet_size"`
}

type configRoot struct {
	StationDAQ Config `mapstructure:"stationdaq"`
}

// Load reads configuration from a YAML file, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	cfg := root.StationDAQ
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrConfigInvalid, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stationdaq.ingress.frame_size", 65535)
	v.SetDefault("stationdaq.ingress.frames_per_block", 128)
	v.SetDefault("stationdaq.ingress.nof_blocks", 64)
	v.SetDefault("stationdaq.ingress.nof_threads", 1)

	v.SetDefault("stationdaq.log.level", "info")
	v.SetDefault("stationdaq.log.format", "json")
	v.SetDefault("stationdaq.log.file.enabled", false)
	v.SetDefault("stationdaq.log.file.max_size_mb", 512)
	v.SetDefault("stationdaq.log.file.max_age_days", 14)
	v.SetDefault("stationdaq.log.file.max_backups", 5)
	v.SetDefault("stationdaq.log.file.compress", true)

	v.SetDefault("stationdaq.metrics.enabled", true)
	v.SetDefault("stationdaq.metrics.listen", ":9091")
	v.SetDefault("stationdaq.metrics.path", "/metrics")

	v.SetDefault("stationdaq.raw.nof_pols", 2)
	v.SetDefault("stationdaq.station_beam.max_file_size_bytes", 4*1024*1024*1024)

	v.SetDefault("stationdaq.raw.port", 4660)
	v.SetDefault("stationdaq.burst_channel.port", 4661)
	v.SetDefault("stationdaq.continuous_channel.port", 4662)
	v.SetDefault("stationdaq.integrated_channel.port", 4663)
	v.SetDefault("stationdaq.burst_beam.port", 4664)
	v.SetDefault("stationdaq.integrated_beam.port", 4665)
	v.SetDefault("stationdaq.station_beam.port", 4666)
	v.SetDefault("stationdaq.antenna_buffer.port", 4667)
	v.SetDefault("stationdaq.correlator.port", 4668)
}

// Validate checks configuration invariants that would otherwise
// surface as an obscure runtime failure deep in ingress or a
// reassembler. It never mutates the config.
func (c *Config) Validate() error {
	if c.Ingress.Interface == "" {
		return fmt.Errorf("ingress.interface is required")
	}
	if c.Ingress.NofThreads < 1 {
		return fmt.Errorf("ingress.nof_threads must be >= 1")
	}
	if c.Raw.NofPols != 0 && c.Raw.NofPols != 1 && c.Raw.NofPols != 2 {
		return fmt.Errorf("raw.nof_pols must be 1 or 2")
	}
	return nil
}
