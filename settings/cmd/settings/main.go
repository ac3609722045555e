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

	"golang.org/x/sync/errgroup"

	"github.com/grindscale/devmock/internal/metrics"
	"github.com/grindscale/devmock/internal/mirror"
	"github.com/grindscale/devmock/settings/internal/api"
	"github.com/grindscale/devmock/settings/internal/command"
	"github.com/grindscale/devmock/settings/internal/config"
	"github.com/grindscale/devmock/settings/internal/store"
	"github.com/grindscale/devmock/settings/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty: built-in defaults)")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("devmock-settings starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Settings.Level())

	slog.Info("config loaded",
		"listen", cfg.Settings.Listen,
		"strict_set", cfg.Settings.StrictSet,
		"mqtt_broker", cfg.Settings.MQTT.Broker,
	)
	if !cfg.Settings.StrictSet {
		slog.Debug("loose set matching: any message containing \"set\" is parsed as set:key:value")
	}

	// Retained so a subscriber that joins late still sees the current map.
	pub, err := mirror.New(cfg.Settings.MQTT, true)
	if err != nil {
		slog.Error("failed to start mqtt mirror", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(store.Defaults())
	reg := metrics.NewRegistry()
	hub := ws.New(st, command.Parser{Strict: cfg.Settings.StrictSet}, pub, reg)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(st, hub))
	mux.Handle("/metrics", reg)
	mux.Handle("/", hub)

	srv := &http.Server{
		Addr:    cfg.Settings.Listen,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("websocket listener started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("devmock-settings stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("devmock-settings shut down")
}
