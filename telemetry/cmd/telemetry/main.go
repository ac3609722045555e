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
	"github.com/grindscale/devmock/telemetry/internal/config"
	"github.com/grindscale/devmock/telemetry/internal/pusher"
	"github.com/grindscale/devmock/telemetry/internal/sequence"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty: built-in defaults)")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("devmock-telemetry starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Telemetry.Level())

	slog.Info("config loaded",
		"listen", cfg.Telemetry.Listen,
		"frame_interval", cfg.Telemetry.FrameInterval,
		"wrap_interval", cfg.Telemetry.WrapInterval,
		"mqtt_broker", cfg.Telemetry.MQTT.Broker,
	)

	pub, err := mirror.New(cfg.Telemetry.MQTT, false)
	if err != nil {
		slog.Error("failed to start mqtt mirror", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := metrics.NewRegistry()
	p := pusher.New(sequence.Default(), cadence(cfg), pub, reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg)
	mux.Handle("/", p)

	srv := &http.Server{
		Addr:    cfg.Telemetry.Listen,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p.Run(gctx)
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

	if *configPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, *configPath, func(updated *config.Config) {
				level.Set(updated.Telemetry.Level())
				p.SetCadence(cadence(updated))
				slog.Info("cadence updated",
					"frame_interval", updated.Telemetry.FrameInterval,
					"wrap_interval", updated.Telemetry.WrapInterval,
				)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("devmock-telemetry stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("devmock-telemetry shut down")
}

func cadence(cfg *config.Config) pusher.Cadence {
	return pusher.Cadence{
		Frame: cfg.Telemetry.FrameInterval,
		Wrap:  cfg.Telemetry.WrapInterval,
	}
}
