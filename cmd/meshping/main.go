package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshping/internal/chart"
	"meshping/internal/config"
	"meshping/internal/database"
	"meshping/internal/exposition"
	"meshping/internal/logging"
	"meshping/internal/models"
	"meshping/internal/monitor"
	"meshping/internal/netclass"
	"meshping/internal/peer"
	"meshping/internal/ping"
	"meshping/internal/reconcile"
	"meshping/internal/resolve"
	"meshping/internal/web"
)

//go:embed static
var staticFiles embed.FS

func main() {
	// Parse configuration
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{
		Service:  "meshping",
		Level:    cfg.Logging.Level,
		Dir:      cfg.Logging.Dir,
		MaxMB:    cfg.Logging.MaxMB,
		MaxFiles: cfg.Logging.MaxFiles,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(2)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	if err := run(cfg, logger.Logger); err != nil {
		logger.Error("meshping failed", "error", err)
		logger.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		return fmt.Errorf("initialize database schema: %w", err)
	}

	resolver, err := resolve.New(cfg.Nameservers, cfg.ResolveTimeout)
	if err != nil {
		return fmt.Errorf("initialize resolver: %w", err)
	}

	// Initialize components
	mon := monitor.New(monitor.Config{Interval: cfg.Interval, Timeout: cfg.Timeout}, db, newPinger(cfg.PingMode), logger)
	if err := mon.Load(); err != nil {
		return fmt.Errorf("load targets: %w", err)
	}

	classifier := netclass.New()
	reconciler := reconcile.New(mon, classifier, resolver, logger)

	var charts models.ChartRenderer
	if cfg.HaveProm() {
		renderer, err := chart.New(chart.Config{URL: cfg.PrometheusURL, Query: cfg.PrometheusQuery}, logger)
		if err != nil {
			return fmt.Errorf("initialize chart renderer: %w", err)
		}
		defer renderer.Close()
		charts = renderer
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return err
	}
	hostname, _ := os.Hostname()
	webServer, err := web.New(web.Config{Listen: cfg.Listen, Hostname: hostname}, reconciler, exposition.New(mon), charts, static, logger)
	if err != nil {
		return fmt.Errorf("initialize web server: %w", err)
	}

	// Handle shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, target := range cfg.Targets {
		if _, err := reconciler.AddTarget(ctx, target); err != nil {
			logger.Warn("failed to add configured target", "target", target, "error", err)
		}
	}

	if err := mon.Start(); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	announcer := peer.New(peer.Config{Peers: cfg.Peers, Interval: cfg.PeerInterval}, mon, classifier, logger)
	announcer.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- webServer.Start()
	}()

	logger.Info("meshping started", "listen", cfg.Listen, "interval", cfg.Interval, "peers", len(cfg.Peers), "prometheus", cfg.HaveProm())

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := webServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("web server shutdown", "error", serr)
	}

	announcer.Wait()
	mon.Stop()
	mon.Wait()
	return err
}

func newPinger(mode string) models.Pinger {
	if mode == config.PingModeICMP {
		return ping.NewICMP()
	}
	return ping.New()
}
