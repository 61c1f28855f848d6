// Command augment injects a "similar repositories" panel into host pages and
// keeps it in sync as the host navigates client-side.
//
// Usage:
//
//	augment -config augment.yaml                  # pages from YAML config
//	augment -url https://github.com/acme/widgets  # single page, stdout sink
//	augment -stats -api http://localhost:8000     # check the service and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/augment/content"
	"github.com/hazyhaar/augment/engine"
	"github.com/hazyhaar/augment/settings"
)

func main() {
	configPath := flag.String("config", "", "path to augment.yaml config file")
	singleURL := flag.String("url", "", "augment a single URL (stdout sink)")
	stats := flag.Bool("stats", false, "print service stats and exit")
	apiURL := flag.String("api", "", "service base URL (overrides fallback_url)")
	settingsDB := flag.String("settings", "", "host settings database (overrides service.settings_db)")
	statusAddr := flag.String("status", "", "status API listen address, e.g. 127.0.0.1:8089")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *stats:
		err = runStats(ctx, logger, *apiURL)
	case *singleURL != "" || *configPath != "":
		var cfg *engine.Config
		cfg, err = loadConfig(*configPath, *singleURL)
		if err == nil {
			if *apiURL != "" {
				cfg.Service.FallbackURL = *apiURL
			}
			if *settingsDB != "" {
				cfg.Service.SettingsDB = *settingsDB
			}
			if *statusAddr != "" {
				cfg.Status.Addr = *statusAddr
			}
			err = runDaemon(ctx, logger, cfg)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: augment -config <file> | -url <url> | -stats")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("augment: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path, singleURL string) (*engine.Config, error) {
	if singleURL != "" {
		cfg := engine.Default(singleURL)
		cfg.Browser.ResourceBlocking = []string{"images", "fonts", "media"}
		cfg.Sinks = []engine.SinkConfig{{Type: "stdout"}}
		return cfg, cfg.Validate()
	}
	cfg, err := engine.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runDaemon(ctx context.Context, logger *slog.Logger, cfg *engine.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d := engine.New(cfg, logger)
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runStats(ctx context.Context, logger *slog.Logger, apiURL string) error {
	if apiURL != "" {
		if err := settings.ValidateBaseURL(apiURL); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := content.New(settings.Static(apiURL), content.WithLogger(logger))
	st, err := client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats %s: %w", client.BaseURL(), err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
