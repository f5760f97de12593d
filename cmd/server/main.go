package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhasspy/wyoming-porcupine1/internal/config"
	"github.com/rhasspy/wyoming-porcupine1/internal/detector"
	"github.com/rhasspy/wyoming-porcupine1/internal/engine"
	"github.com/rhasspy/wyoming-porcupine1/internal/keywords"
	"github.com/rhasspy/wyoming-porcupine1/internal/metrics"
	"github.com/rhasspy/wyoming-porcupine1/internal/server"
	"github.com/rhasspy/wyoming-porcupine1/internal/session"
	"github.com/rhasspy/wyoming-porcupine1/internal/wyoming"
)

const (
	serviceName    = "wyoming-porcupine1"
	serviceVersion = "1.0.0"
	modelVersion   = "1.9.0"
)

// options is the command line surface; flags override config file values
type options struct {
	Config             string   `long:"config" description:"Path to YAML configuration file"`
	URI                string   `long:"uri" description:"Server URI: tcp://host:port, unix://path or stdio://"`
	DataDir            string   `long:"data-dir" description:"Path to directory with engine libraries and keyword models"`
	CustomWakeWordsDir string   `long:"custom-wake-words-dir" description:"Path to directory with custom wake word models"`
	System             string   `long:"system" description:"Target system: linux, raspberry-pi or mac (auto-detected)"`
	Sensitivity        *float64 `long:"sensitivity" description:"Detection sensitivity between 0 and 1 (default 0.5)"`
	AccessKey          string   `long:"access-key" description:"Access key for the detection engine"`
	CaptureDir         string   `long:"capture-dir" description:"Save each utterance as a WAV file in this directory"`
	HTTPAddress        string   `long:"http-address" description:"Enable the monitoring HTTP server on this address"`
	Debug              bool     `long:"debug" description:"Log DEBUG messages"`
	Version            bool     `long:"version" description:"Print version and exit"`
}

func main() {
	opts := parseCmd()

	if opts.Version {
		fmt.Println(serviceVersion)
		return
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging, opts.Debug)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("uri", cfg.Server.URI),
		slog.String("data_dir", cfg.Engine.DataDir),
		slog.String("system", cfg.Engine.System),
		slog.Float64("sensitivity", float64(cfg.Engine.Sensitivity)),
	)

	// Discover installed keyword models
	catalog, err := keywords.Discover(cfg.Engine.DataDir, cfg.Engine.CustomWakeWordsDir, cfg.Engine.System)
	if err != nil {
		logger.Error("Keyword discovery failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if catalog.Len() == 0 {
		logger.Error("No keyword models found",
			slog.String("data_dir", cfg.Engine.DataDir),
			slog.String("system", cfg.Engine.System),
		)
		os.Exit(1)
	}
	logger.Info("Keywords discovered", slog.Int("count", catalog.Len()))

	if cfg.Engine.CaptureDir != "" {
		if err := os.MkdirAll(cfg.Engine.CaptureDir, 0o755); err != nil {
			logger.Error("Failed to create capture directory", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	engineCfg := engine.Config{
		AccessKey: cfg.Engine.AccessKey,
		Catalog:   catalog,
	}
	pool := detector.NewPool(engineCfg, engine.NewPorcupine, logger, appMetrics)
	defer pool.Close()

	infoEvent, err := buildInfoEvent(catalog)
	if err != nil {
		logger.Error("Failed to build capabilities report", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessionCfg := session.Config{
		Pool:           pool,
		InfoEvent:      infoEvent,
		DefaultKeyword: cfg.Engine.DefaultKeyword,
		Sensitivity:    cfg.Engine.Sensitivity,
		CaptureDir:     cfg.Engine.CaptureDir,
		Metrics:        appMetrics,
		Logger:         logger,
	}
	srv := server.New(cfg.Server.URI, sessionCfg, logger)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP.Address, logger, srv, pool, catalog)
		httpServer.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Ready")

	// Run returns on context cancellation or, for stdio, when the peer
	// closes the stream (graceful shutdown, exit code 0).
	if err := srv.Run(ctx); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	logger.Info("Service stopped",
		slog.Uint64("engine_constructions", pool.Constructions()),
		slog.Uint64("pool_hits", pool.Hits()),
	)
}

// parseCmd parses command line flags
func parseCmd() options {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	return opts
}

// loadConfig builds the effective configuration: defaults, then the
// optional config file, then command line overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()

	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.URI != "" {
		cfg.Server.URI = opts.URI
	}
	if opts.DataDir != "" {
		cfg.Engine.DataDir = opts.DataDir
	}
	if opts.CustomWakeWordsDir != "" {
		cfg.Engine.CustomWakeWordsDir = opts.CustomWakeWordsDir
	}
	if opts.System != "" {
		cfg.Engine.System = opts.System
	}
	if opts.Sensitivity != nil {
		cfg.Engine.Sensitivity = float32(*opts.Sensitivity)
	}
	if opts.AccessKey != "" {
		cfg.Engine.AccessKey = opts.AccessKey
	}
	if opts.CaptureDir != "" {
		cfg.Engine.CaptureDir = opts.CaptureDir
	}
	if opts.HTTPAddress != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Address = opts.HTTPAddress
	}

	if cfg.Engine.System == "" {
		cfg.Engine.System = keywords.DetectSystem()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// buildInfoEvent creates the capabilities report sent for describe events
func buildInfoEvent(catalog *keywords.Catalog) (*wyoming.Event, error) {
	attribution := wyoming.Attribution{
		Name: "Picovoice",
		URL:  "https://github.com/Picovoice/porcupine",
	}

	kws := catalog.Keywords()
	models := make([]wyoming.WakeModel, 0, len(kws))
	for _, kw := range kws {
		models = append(models, wyoming.WakeModel{
			Name:        kw.Name,
			Description: fmt.Sprintf("%s (%s)", kw.Name, kw.Language),
			Attribution: attribution,
			Installed:   true,
			Languages:   []string{kw.Language},
			Version:     modelVersion,
		})
	}

	info := wyoming.Info{
		Wake: []wyoming.WakeProgram{{
			Name:        "porcupine1",
			Description: "On-device wake word detection powered by deep learning",
			Attribution: attribution,
			Installed:   true,
			Version:     serviceVersion,
			Models:      models,
		}},
	}

	return info.Event()
}

// initLogger creates the structured logger. The stdio transport owns
// stdout, so logs default to stderr.
func initLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
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
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
