package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "empty server url",
			mutate:      func(c *Config) { c.Server.URL = "" },
			expectError: true,
			errorMsg:    "url cannot be empty",
		},
		{
			name:        "missing target language",
			mutate:      func(c *Config) { c.Server.TargetLanguage = "" },
			expectError: true,
			errorMsg:    "target_language cannot be empty",
		},
		{
			name:        "backoff cap below base",
			mutate:      func(c *Config) { c.Server.BackoffBase = 10; c.Server.BackoffMax = 5 },
			expectError: true,
			errorMsg:    "backoff_max",
		},
		{
			name:        "invalid sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 96000 },
			expectError: true,
			errorMsg:    "sample_rate must be between 8000 and 48000",
		},
		{
			name:        "stereo rejected",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name:        "zero gap timeout",
			mutate:      func(c *Config) { c.Playout.GapTimeout = 0 },
			expectError: true,
			errorMsg:    "gap_timeout must be positive",
		},
		{
			name:        "zero sample ratio out of range",
			mutate:      func(c *Config) { c.Validator.ZeroSampleRatio = 1.5 },
			expectError: true,
			errorMsg:    "zero_sample_ratio must be between 0 and 1",
		},
		{
			name:        "rms spike factor too low",
			mutate:      func(c *Config) { c.Validator.RMSSpikeFactor = 1.0 },
			expectError: true,
			errorMsg:    "rms_spike_factor must be greater than 1",
		},
		{
			name:        "target rms out of range",
			mutate:      func(c *Config) { c.DSP.TargetRMS = 1.0 },
			expectError: true,
			errorMsg:    "target_rms must be between 0 and 1",
		},
		{
			name:        "low watermark above high watermark",
			mutate:      func(c *Config) { c.SendQueue.LowWatermark = 20 },
			expectError: true,
			errorMsg:    "low_watermark",
		},
		{
			name:        "high watermark above capacity",
			mutate:      func(c *Config) { c.SendQueue.HighWatermark = 100 },
			expectError: true,
			errorMsg:    "high_watermark must be between 1 and capacity",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
server:
  url: "ws://localhost:8765/translate"
  source_language: "en"
  target_language: "uk"
  handshake_timeout: 10
  keepalive_interval: 20
  backoff_base: 1
  backoff_max: 60
  max_reconnects: 10
http:
  port: 8080
  address: "127.0.0.1"
  enabled: true
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  chunk_duration: 0.2
playout:
  min_buffer_chunks: 3
  reorder_window: 10
  gap_timeout: 0.3
  jitter_interval: 30
  underrun_ceiling: 5.0
validator:
  min_chunk_bytes: 2
  max_chunk_bytes: 1048576
  zero_sample_ratio: 0.95
  rms_spike_factor: 10.0
  rms_history: 16
dsp:
  target_rms: 0.2
  compress_threshold: 0.3
  compress_ratio: 2.0
  flatten_spike_level: 0.1
  flatten_target_rms: 0.7
send_queue:
  capacity: 50
  high_watermark: 15
  low_watermark: 10
  max_retries: 3
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  url: "ws://localhost:8765/translate"
  handshake_timeout: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
server:
  url: "ws://localhost:8765/translate"
  # missing languages
`,
			expectError: true,
			errorMsg:    "cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	server := ServerConfig{
		HandshakeTimeout:  10,
		KeepaliveInterval: 20,
		BackoffBase:       1,
		BackoffMax:        60,
	}

	if server.GetHandshakeTimeoutDuration() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", server.GetHandshakeTimeoutDuration())
	}

	if server.GetKeepaliveIntervalDuration() != 20*time.Second {
		t.Errorf("Expected 20 seconds, got %v", server.GetKeepaliveIntervalDuration())
	}

	if server.GetBackoffBaseDuration() != time.Second {
		t.Errorf("Expected 1 second, got %v", server.GetBackoffBaseDuration())
	}

	if server.GetBackoffMaxDuration() != time.Minute {
		t.Errorf("Expected 60 seconds, got %v", server.GetBackoffMaxDuration())
	}

	audio := AudioConfig{ChunkDuration: 0.2}
	if audio.GetChunkDuration() != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got %v", audio.GetChunkDuration())
	}

	playout := PlayoutConfig{
		GapTimeout:      0.3,
		JitterInterval:  30,
		UnderrunCeiling: 5.0,
	}

	if playout.GetGapTimeoutDuration() != 300*time.Millisecond {
		t.Errorf("Expected 300ms, got %v", playout.GetGapTimeoutDuration())
	}

	if playout.GetJitterIntervalDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", playout.GetJitterIntervalDuration())
	}

	if playout.GetUnderrunCeilingDuration() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", playout.GetUnderrunCeilingDuration())
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
}
