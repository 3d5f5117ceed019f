// Package main provides the playback daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/returnzero/radiod/internal/api/httpapi"
	"github.com/returnzero/radiod/internal/app/backend"
	"github.com/returnzero/radiod/internal/app/focus"
	"github.com/returnzero/radiod/internal/app/guard"
	"github.com/returnzero/radiod/internal/app/notify"
	"github.com/returnzero/radiod/internal/app/playback"
	"github.com/returnzero/radiod/internal/domain/station"
	"github.com/returnzero/radiod/internal/infra/config"
	"github.com/returnzero/radiod/internal/infra/desktop"
	"github.com/returnzero/radiod/internal/infra/engine"
	"github.com/returnzero/radiod/internal/infra/logger"
	"github.com/returnzero/radiod/internal/infra/netkeep"
	"github.com/returnzero/radiod/internal/infra/power"
)

const appTitle = "Radio"

var (
	app        = kingpin.New("radiod", "Background radio playback daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/radiod.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Load config first so the logger block is honored; CLI flags win.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{Output: cfg.Log.Output, Level: cfg.Log.Level}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Daemon error: %v", err)
		os.Exit(1)
	}
}

// run executes the main daemon logic. Using a separate function
// ensures defer statements are executed even when returning with an
// error.
func run(cfg *config.Config) error {
	defaultStation, err := station.New(cfg.Station.URI, cfg.Station.Title)
	if err != nil {
		return fmt.Errorf("invalid station: %w", err)
	}
	zlog.Info().Stringer("station", defaultStation).Msg("Configured station")

	factory, err := engine.NewFactoryFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine factory: %w", err)
	}
	adapter := backend.NewAdapter(factory, cfg.PrepareTimeout())

	notifier := buildNotifier(cfg)
	machine := playback.New(playback.Config{
		DuckVolume:     cfg.Playback.DuckVolume,
		DefaultStation: defaultStation,
	}, adapter, focus.NewArbiter(nil), buildGuard(cfg, defaultStation), notifier)

	apiServer := httpapi.New(machine, notifier)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(apiServer.Router(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting control API: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-machine.Done():
		if !cfg.Server.ExitOnStop {
			// Stay resident: the machine remains usable after a stop.
			zlog.Debug().Msg("Playback stopped, daemon stays resident")
			waitForSignal(sigCh, serverErrCh)
		} else {
			zlog.Info().Msg("Playback stopped, shutting down...")
		}
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Force the machine to stopped so every lease and the engine are
	// released before the process exits.
	machine.Stop(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Daemon stopped")
	return nil
}

func waitForSignal(sigCh chan os.Signal, serverErrCh chan error) {
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		zlog.Error().Msgf("Server error: %v", err)
	}
}

// buildGuard assembles the resource leases; unavailable host
// capabilities degrade to tracked-but-inert leases.
func buildGuard(cfg *config.Config, st station.Station) *guard.Guard {
	var wake guard.Lease
	if !cfg.Guard.DisableWakeLock {
		inhibitor, err := power.NewInhibitor("radiod", "streaming radio playback")
		if err != nil {
			zlog.Warn().Err(err).Msg("Wake lock unavailable, continuing without")
		} else {
			wake = inhibitor
		}
	}

	var keepalive guard.Lease
	ka, err := netkeep.New(st.URI, cfg.KeepaliveInterval())
	if err != nil {
		zlog.Warn().Err(err).Msg("Network keepalive unavailable, continuing without")
	} else {
		keepalive = ka
	}

	return guard.New(wake, keepalive)
}

// buildNotifier assembles the notifier; without a desktop session the
// foreground presentation degrades to log-only.
func buildNotifier(cfg *config.Config) *notify.Manager {
	var presenter notify.Presenter
	if !cfg.Presentation.DisableDesktop {
		p, err := desktop.NewPresenter(appTitle)
		if err != nil {
			zlog.Warn().Err(err).Msg("Desktop presentation unavailable, continuing without")
		} else {
			presenter = p
		}
	}
	return notify.NewManager(appTitle, presenter)
}
