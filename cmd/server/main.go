package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ouroboros "github.com/i5heu/ouroboros-blocks"
	"github.com/i5heu/ouroboros-blocks/internal/config"
	"github.com/i5heu/ouroboros-blocks/pkg/logging"
)

const (
	logKeyListenAddr = "listenAddr"
	logKeyBackend    = "backend"
	logKeyDataPath   = "dataPath"
	logKeyMaxBlock   = "maxBlockSize"
	logKeySignal     = "signal"
	logKeyError      = "error"
)

func main() { // A
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(os.Stderr, level, format)

	logger.InfoContext(context.Background(), "starting ouroboros-blocks server",
		logKeyListenAddr, cfg.Listen,
		logKeyBackend, cfg.Backend,
		logKeyDataPath, cfg.DataPath,
		logKeyMaxBlock, cfg.MaxBlockSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.InfoContext(ctx, "received shutdown signal", logKeySignal, sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.ErrorContext(context.Background(), "server error", logKeyError, err)
		os.Exit(1)
	}
}

// loadConfig reads the optional YAML file and applies flags on top. Only
// flags given on the command line override the file.
func loadConfig(args []string) (config.Config, error) { // A
	fs := flag.NewFlagSet("ouroboros-blocks", flag.ContinueOnError)
	path := fs.String("config", "", "Path to a YAML config file")
	listen := fs.String("listen", "", "Address to serve the HTTP API on")
	backend := fs.String("backend", "", "Record store: badger or sqlite")
	dataPath := fs.String("data", "", "Path to the badger data directory")
	dsn := fs.String("dsn", "", "sqlite data source name")
	maxBlock := fs.Int("max-block-size", 0, "Largest accepted block in bytes")
	minFree := fs.Uint("min-free-gb", 0, "Refuse to open badger below this free space")
	compression := fs.String("compression", "", "Badger block compression: zstd, xz or none")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	logFormat := fs.String("log-format", "", "text or json")
	debug := fs.Bool("debug", false, "Shortcut for -log-level debug")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			return config.Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "backend":
			cfg.Backend = *backend
		case "data":
			cfg.DataPath = *dataPath
		case "dsn":
			cfg.DSN = *dsn
		case "max-block-size":
			cfg.MaxBlockSize = *maxBlock
		case "min-free-gb":
			cfg.MinimumFreeGB = *minFree
		case "compression":
			cfg.Compression = *compression
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "debug":
			if *debug {
				cfg.LogLevel = "debug"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// run serves the API until ctx is canceled.
func run(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
) error { // A
	db, err := ouroboros.New(ouroboros.Config{
		Backend:       cfg.Backend,
		Paths:         []string{cfg.DataPath},
		DSN:           cfg.DSN,
		MinimumFreeGB: cfg.MinimumFreeGB,
		MaxBlockSize:  cfg.MaxBlockSize,
		Compression:   cfg.Compression,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("configure database: %w", err)
	}
	if err := db.Start(ctx); err != nil {
		return fmt.Errorf("start database: %w", err)
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			logger.Error("close database", logKeyError, err)
		}
	}()

	handler, err := db.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "http api listening", logKeyListenAddr, cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	logger.Info("http api stopped")
	return nil
}
