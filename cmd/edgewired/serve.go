package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	edgewire "github.com/edgeql-io/edgewire"
	"github.com/edgeql-io/edgewire/internal/config"
	"github.com/edgeql-io/edgewire/internal/metrics"
)

func runServeCommand() *cobra.Command {
	var (
		configPath  string
		metricsBind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start accepting client connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(configPath, metricsBind)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "edgewired.yaml", "path to configuration file")
	cmd.Flags().StringVar(&metricsBind, "metrics-bind", "127.0.0.1:9100", "address the Prometheus /metrics endpoint listens on")

	return cmd
}

func serve(configPath, metricsBind string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	logger.Info("configuration loaded", "path", configPath, "backend", cfg.Backend.Redacted().DSN)

	collector := metrics.New()

	srv, err := edgewire.NewServer(
		cfg.Backend.DSN,
		edgewire.WithLogger(logger),
		edgewire.WithMetrics(collector),
		edgewire.WithDeveloperMode(cfg.DeveloperMode),
		edgewire.WithQueryCacheEnabled(cfg.Query.CacheEnabled),
		edgewire.WithBufferedMsgSize(cfg.Query.BufferedMsgSize),
	)
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(configPath, logger, func(newCfg *config.Config) {
		srv.SetDeveloperMode(newCfg.DeveloperMode)
	})
	if err != nil {
		logger.Warn("config hot-reload not available", "err", err)
	} else {
		defer watcher.Stop()
	}

	metricsSrv := &http.Server{Addr: metricsBind, Handler: collector.Handler()}
	go func() {
		logger.Info("serving metrics", "addr", metricsBind)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("serving client connections", "addr", cfg.Listen.Address)
		serveErr <- srv.ListenAndServe(cfg.Listen.Address)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	_ = metricsSrv.Close()
	return srv.Close()
}
