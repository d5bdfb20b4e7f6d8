package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"gossipwatch/config"
	"gossipwatch/observability/logging"
	telemetry "gossipwatch/observability/otel"
	"gossipwatch/observer"
)

const (
	envEnvironment = "GOSSIPWATCH_ENV"
	envSinkURL     = "GOSSIPWATCH_SINK_URL"
	envEntrypoints = "GOSSIPWATCH_ENTRYPOINTS"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "Override the local gossip bind address")
	sinkFlag := flag.String("sink", "", "Override the sink endpoint URL")
	debugFlag := flag.String("debug-addr", "", "Override the debug/metrics HTTP address (empty string in config disables)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envEnvironment))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *listenFlag, *sinkFlag, *debugFlag)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var fileOpts *logging.FileOptions
	if strings.TrimSpace(cfg.Log.File) != "" {
		fileOpts = &logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
	}
	logger := logging.Setup("observerd", env, fileOpts)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	if otlpEndpoint != "" {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "observerd",
			Environment: env,
			Endpoint:    otlpEndpoint,
			Insecure:    insecure,
			Headers:     otlpHeaders,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := observer.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start observer node", slog.Any("error", err))
		os.Exit(1)
	}

	if err := node.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Observer node exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// applyOverrides layers CLI flags and environment variables over the file
// config. Flags win over env, env wins over file.
func applyOverrides(cfg *config.Config, listen, sink, debug string) {
	if eps := strings.TrimSpace(os.Getenv(envEntrypoints)); eps != "" {
		parts := strings.Split(eps, ",")
		entrypoints := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				entrypoints = append(entrypoints, trimmed)
			}
		}
		if len(entrypoints) > 0 {
			cfg.Entrypoints = entrypoints
		}
	}
	if url := strings.TrimSpace(os.Getenv(envSinkURL)); url != "" {
		cfg.Sink.URL = url
	}
	if listen = strings.TrimSpace(listen); listen != "" {
		cfg.ListenAddress = listen
	}
	if sink = strings.TrimSpace(sink); sink != "" {
		cfg.Sink.URL = sink
	}
	if debug = strings.TrimSpace(debug); debug != "" {
		cfg.DebugAddress = debug
	}
}
