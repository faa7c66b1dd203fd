package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Audio     AudioConfig     `yaml:"audio"`
	Playout   PlayoutConfig   `yaml:"playout"`
	Validator ValidatorConfig `yaml:"validator"`
	DSP       DSPConfig       `yaml:"dsp"`
	SendQueue SendQueueConfig `yaml:"send_queue"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains translation server connection configuration
type ServerConfig struct {
	URL               string `yaml:"url"`
	SourceLanguage    string `yaml:"source_language"`
	TargetLanguage    string `yaml:"target_language"`
	HandshakeTimeout  int    `yaml:"handshake_timeout"`  // seconds
	KeepaliveInterval int    `yaml:"keepalive_interval"` // seconds
	BackoffBase       int    `yaml:"backoff_base"`       // seconds
	BackoffMax        int    `yaml:"backoff_max"`        // seconds
	MaxReconnects     int    `yaml:"max_reconnects"`
}

// HTTPConfig contains HTTP monitoring server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains audio stream parameters
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	BitDepth      int     `yaml:"bit_depth"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds
}

// PlayoutConfig contains jitter buffer and playout engine configuration
type PlayoutConfig struct {
	MinBufferChunks int     `yaml:"min_buffer_chunks"`
	ReorderWindow   int     `yaml:"reorder_window"`    // chunks
	GapTimeout      float64 `yaml:"gap_timeout"`       // seconds
	JitterInterval  int     `yaml:"jitter_interval"`   // seconds
	UnderrunCeiling float64 `yaml:"underrun_ceiling"`  // seconds
}

// ValidatorConfig contains corruption detection thresholds
type ValidatorConfig struct {
	MinChunkBytes   int     `yaml:"min_chunk_bytes"`
	MaxChunkBytes   int     `yaml:"max_chunk_bytes"`
	ZeroSampleRatio float64 `yaml:"zero_sample_ratio"`
	RMSSpikeFactor  float64 `yaml:"rms_spike_factor"`
	RMSHistory      int     `yaml:"rms_history"` // chunks
}

// DSPConfig contains smoothing chain levels
type DSPConfig struct {
	TargetRMS         float64 `yaml:"target_rms"`
	CompressThreshold float64 `yaml:"compress_threshold"`
	CompressRatio     float64 `yaml:"compress_ratio"`
	FlattenSpikeLevel float64 `yaml:"flatten_spike_level"`
	FlattenTargetRMS  float64 `yaml:"flatten_target_rms"`
}

// SendQueueConfig contains outbound buffer configuration
type SendQueueConfig struct {
	Capacity      int `yaml:"capacity"`
	HighWatermark int `yaml:"high_watermark"`
	LowWatermark  int `yaml:"low_watermark"`
	MaxRetries    int `yaml:"max_retries"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Playout.Validate(); err != nil {
		return fmt.Errorf("playout config: %w", err)
	}

	if err := c.Validator.Validate(); err != nil {
		return fmt.Errorf("validator config: %w", err)
	}

	if err := c.DSP.Validate(); err != nil {
		return fmt.Errorf("dsp config: %w", err)
	}

	if err := c.SendQueue.Validate(); err != nil {
		return fmt.Errorf("send_queue config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if s.SourceLanguage == "" || s.TargetLanguage == "" {
		return fmt.Errorf("source_language and target_language cannot be empty")
	}

	if s.HandshakeTimeout < 1 {
		return fmt.Errorf("handshake_timeout must be at least 1 second, got %d", s.HandshakeTimeout)
	}

	if s.KeepaliveInterval < 1 {
		return fmt.Errorf("keepalive_interval must be at least 1 second, got %d", s.KeepaliveInterval)
	}

	if s.BackoffBase < 1 {
		return fmt.Errorf("backoff_base must be at least 1 second, got %d", s.BackoffBase)
	}

	if s.BackoffMax < s.BackoffBase {
		return fmt.Errorf("backoff_max (%d) must be at least backoff_base (%d)",
			s.BackoffMax, s.BackoffBase)
	}

	if s.MaxReconnects < 1 {
		return fmt.Errorf("max_reconnects must be at least 1, got %d", s.MaxReconnects)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	return nil
}

// Validate validates playout configuration
func (p *PlayoutConfig) Validate() error {
	if p.MinBufferChunks < 1 {
		return fmt.Errorf("min_buffer_chunks must be at least 1, got %d", p.MinBufferChunks)
	}

	if p.ReorderWindow < 1 {
		return fmt.Errorf("reorder_window must be at least 1 chunk, got %d", p.ReorderWindow)
	}

	if p.GapTimeout <= 0 {
		return fmt.Errorf("gap_timeout must be positive, got %f", p.GapTimeout)
	}

	if p.JitterInterval < 1 {
		return fmt.Errorf("jitter_interval must be at least 1 second, got %d", p.JitterInterval)
	}

	if p.UnderrunCeiling <= 0 {
		return fmt.Errorf("underrun_ceiling must be positive, got %f", p.UnderrunCeiling)
	}

	return nil
}

// Validate validates corruption detection thresholds
func (v *ValidatorConfig) Validate() error {
	if v.MinChunkBytes < 2 {
		return fmt.Errorf("min_chunk_bytes must be at least 2, got %d", v.MinChunkBytes)
	}

	if v.MaxChunkBytes <= v.MinChunkBytes {
		return fmt.Errorf("max_chunk_bytes (%d) must be greater than min_chunk_bytes (%d)",
			v.MaxChunkBytes, v.MinChunkBytes)
	}

	if v.ZeroSampleRatio <= 0 || v.ZeroSampleRatio > 1 {
		return fmt.Errorf("zero_sample_ratio must be between 0 and 1, got %f", v.ZeroSampleRatio)
	}

	if v.RMSSpikeFactor <= 1 {
		return fmt.Errorf("rms_spike_factor must be greater than 1, got %f", v.RMSSpikeFactor)
	}

	if v.RMSHistory < 1 {
		return fmt.Errorf("rms_history must be at least 1 chunk, got %d", v.RMSHistory)
	}

	return nil
}

// Validate validates DSP levels
func (d *DSPConfig) Validate() error {
	if d.TargetRMS <= 0 || d.TargetRMS >= 1 {
		return fmt.Errorf("target_rms must be between 0 and 1 (exclusive), got %f", d.TargetRMS)
	}

	if d.CompressThreshold <= 0 || d.CompressThreshold >= 1 {
		return fmt.Errorf("compress_threshold must be between 0 and 1 (exclusive), got %f", d.CompressThreshold)
	}

	if d.CompressRatio < 1 {
		return fmt.Errorf("compress_ratio must be at least 1, got %f", d.CompressRatio)
	}

	if d.FlattenSpikeLevel <= 0 {
		return fmt.Errorf("flatten_spike_level must be positive, got %f", d.FlattenSpikeLevel)
	}

	if d.FlattenTargetRMS <= 0 || d.FlattenTargetRMS >= 1 {
		return fmt.Errorf("flatten_target_rms must be between 0 and 1 (exclusive), got %f", d.FlattenTargetRMS)
	}

	return nil
}

// Validate validates send queue configuration
func (q *SendQueueConfig) Validate() error {
	if q.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", q.Capacity)
	}

	if q.HighWatermark < 1 || q.HighWatermark > q.Capacity {
		return fmt.Errorf("high_watermark must be between 1 and capacity (%d), got %d",
			q.Capacity, q.HighWatermark)
	}

	if q.LowWatermark < 1 || q.LowWatermark >= q.HighWatermark {
		return fmt.Errorf("low_watermark must be between 1 and high_watermark (%d), got %d",
			q.HighWatermark, q.LowWatermark)
	}

	if q.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", q.MaxRetries)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetHandshakeTimeoutDuration returns the handshake timeout as a time.Duration
func (s *ServerConfig) GetHandshakeTimeoutDuration() time.Duration {
	return time.Duration(s.HandshakeTimeout) * time.Second
}

// GetKeepaliveIntervalDuration returns the keepalive interval as a time.Duration
func (s *ServerConfig) GetKeepaliveIntervalDuration() time.Duration {
	return time.Duration(s.KeepaliveInterval) * time.Second
}

// GetBackoffBaseDuration returns the reconnect backoff base as a time.Duration
func (s *ServerConfig) GetBackoffBaseDuration() time.Duration {
	return time.Duration(s.BackoffBase) * time.Second
}

// GetBackoffMaxDuration returns the reconnect backoff cap as a time.Duration
func (s *ServerConfig) GetBackoffMaxDuration() time.Duration {
	return time.Duration(s.BackoffMax) * time.Second
}

// GetChunkDuration returns the nominal chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetGapTimeoutDuration returns the reorder gap timeout as a time.Duration
func (p *PlayoutConfig) GetGapTimeoutDuration() time.Duration {
	return time.Duration(p.GapTimeout * float64(time.Second))
}

// GetJitterIntervalDuration returns the jitter recompute interval as a time.Duration
func (p *PlayoutConfig) GetJitterIntervalDuration() time.Duration {
	return time.Duration(p.JitterInterval) * time.Second
}

// GetUnderrunCeilingDuration returns the starvation ceiling as a time.Duration
func (p *PlayoutConfig) GetUnderrunCeilingDuration() time.Duration {
	return time.Duration(p.UnderrunCeiling * float64(time.Second))
}

// Default returns the configuration used when no file is provided
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:               "ws://localhost:8765/translate",
			SourceLanguage:    "en",
			TargetLanguage:    "uk",
			HandshakeTimeout:  10,
			KeepaliveInterval: 20,
			BackoffBase:       1,
			BackoffMax:        60,
			MaxReconnects:     10,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			ChunkDuration: 0.2,
		},
		Playout: PlayoutConfig{
			MinBufferChunks: 3,
			ReorderWindow:   10,
			GapTimeout:      0.3,
			JitterInterval:  30,
			UnderrunCeiling: 5.0,
		},
		Validator: ValidatorConfig{
			MinChunkBytes:   2,
			MaxChunkBytes:   1 << 20,
			ZeroSampleRatio: 0.95,
			RMSSpikeFactor:  10.0,
			RMSHistory:      16,
		},
		DSP: DSPConfig{
			TargetRMS:         0.2,
			CompressThreshold: 0.3,
			CompressRatio:     2.0,
			FlattenSpikeLevel: 0.1,
			FlattenTargetRMS:  0.7,
		},
		SendQueue: SendQueueConfig{
			Capacity:      50,
			HighWatermark: 15,
			LowWatermark:  10,
			MaxRetries:    3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr", // stdout carries played PCM
		},
	}
}
