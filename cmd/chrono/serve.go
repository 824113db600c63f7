package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/cache"
	"github.com/raaihank/chrono-sentinel/internal/config"
	"github.com/raaihank/chrono-sentinel/internal/datetime"
	"github.com/raaihank/chrono-sentinel/internal/rules"
	"github.com/raaihank/chrono-sentinel/internal/server"
	"github.com/raaihank/chrono-sentinel/internal/websocket"
)

// NewServeCommand creates the serve command
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var watchConfig bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detection HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, watchConfig)
		},
	}

	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "reset the rule sets when the config file changes")
	return cmd
}

func runServe(parent context.Context, rootOpts *RootOptions, watchConfig bool) error {
	cfg, log, err := setup(rootOpts)
	if err != nil {
		return err
	}
	defer log.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting chrono-sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
		zap.String("rules_source", cfg.Rules.Source),
	)

	source, closeSource, err := openSource(cfg, log)
	if err != nil {
		return err
	}
	defer closeSource()

	registry := datetime.NewRegistry(source, log.WithComponent("datetime").Logger,
		datetime.WithMatchTimeout(cfg.Rules.MatchTimeout))
	for _, locale := range cfg.Rules.Preload {
		rec := registry.Recognizer(ctx, locale)
		log.Info("Recognizer preloaded", zap.String("locale", locale), zap.String("resolved", rec.Locale()))
	}

	var opts []server.Option

	if cfg.Cache.Enabled {
		rc, err := cache.NewResultCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			// Detection works without the cache
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer rc.Close()
			opts = append(opts, server.WithCache(rc))
		}
	}

	if cfg.WebSocket.Enabled {
		hub := websocket.NewHub(&websocket.HubConfig{
			BroadcastDetections:  cfg.WebSocket.Events.BroadcastDetections,
			BroadcastRequests:    cfg.WebSocket.Events.BroadcastRequests,
			BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			Username:             cfg.WebSocket.Username,
			Password:             cfg.WebSocket.Password,
			AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
			MaxConnections:       cfg.WebSocket.MaxConnections,
			ReadBufferSize:       cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:      cfg.WebSocket.WriteBufferSize,
			MaxMessageSize:       cfg.WebSocket.MaxMessageSize,
			PingInterval:         cfg.WebSocket.PingInterval,
			PongTimeout:          cfg.WebSocket.PongTimeout,
			WriteTimeout:         cfg.WebSocket.WriteTimeout,
		}, log.WithComponent("websocket").Logger)
		go hub.Run(ctx)
		opts = append(opts, server.WithHub(hub))
	}

	srv := server.New(cfg, log, registry, opts...)

	if cfg.Rules.Watch {
		watcher, err := rules.NewWatcher(cfg.Rules.Dir, cfg.Rules.WatchDebounce, func(names []string) {
			srv.ResetRules(ctx, "file_change", names)
		}, log.WithComponent("rules").Logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
		go watcher.Run(ctx)
	}

	if watchConfig {
		err := config.Watch(rootOpts.ConfigPath, func(*config.Config) {
			srv.ResetRules(ctx, "config_change", nil)
		}, log.WithComponent("config").Logger)
		if err != nil {
			log.Warn("Config watching disabled", zap.Error(err))
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start(ctx)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to shutdown server gracefully", zap.Error(err))
		return fmt.Errorf("shutdown failed: %w", err)
	}

	log.Info("Server shutdown complete")
	return nil
}
