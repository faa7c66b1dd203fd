package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/P-yoganjaneyulu/float/internal/client"
	"github.com/P-yoganjaneyulu/float/internal/config"
	"github.com/P-yoganjaneyulu/float/internal/metrics"
	"github.com/P-yoganjaneyulu/float/internal/server"
	"github.com/P-yoganjaneyulu/float/internal/transport"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "float-stream-client"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log client startup
	logger.Info("Client starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.String("server_url", cfg.Server.URL),
		slog.String("source_language", cfg.Server.SourceLanguage),
		slog.String("target_language", cfg.Server.TargetLanguage),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.Int("min_buffer_chunks", cfg.Playout.MinBufferChunks),
		slog.Int("send_queue_capacity", cfg.SendQueue.Capacity),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Capture from stdin, play to stdout: raw PCM16 on both ends so the
	// binary composes with sox/ffmpeg or a recording for testing.
	source := NewStdinSource(os.Stdin, cfg.Audio)
	sink := NewStreamSink(os.Stdout)

	// Assemble the pipeline
	dialer := transport.NewWebSocketDialer(cfg.Server.GetHandshakeTimeoutDuration())
	pipeline, err := client.NewClient(cfg, source, sink, dialer, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pipeline.SetFatalHandler(func(err error) {
		logger.Error("Session failed", slog.String("error", err.Error()))
		cancel()
	})
	logger.Info("Pipeline initialized")

	// Initialize HTTP monitoring server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, pipeline, appMetrics)
		logger.Info("HTTP monitoring server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start the pipeline
	pipeline.Start()

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Client started successfully, waiting for signals...",
		slog.String("server_url", cfg.Server.URL),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the pipeline (capture, transport, playout, in order)
	pipeline.Stop()

	// Get final statistics
	snapshot := pipeline.GetSnapshot()
	logger.Info("Final session statistics",
		slog.String("session_id", snapshot.Session.ID),
		slog.Uint64("chunks_sent", snapshot.Session.Stats.ChunksSent),
		slog.Uint64("chunks_acked", snapshot.Session.Stats.ChunksAcked),
		slog.Uint64("retransmits", snapshot.Session.Stats.Retransmits),
		slog.Uint64("results_received", snapshot.Session.Stats.ResultsReceived),
		slog.Uint64("chunks_played", snapshot.Playout.Stats.ChunksPlayed),
		slog.Uint64("underrun_events", snapshot.Playout.Stats.UnderrunEvents),
	)

	logger.Info("Client stopped")
}

// loadConfig reads the config file, falling back to built-in defaults when
// the default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return config.Load(path)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination. Stdout is reserved for played PCM, so
	// logs default to stderr.
	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
