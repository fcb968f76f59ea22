// Package main provides the fanout server executable: websocket and SSE
// streams, the REST API and an optional cross-process bridge.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/adapters/kafka"
	"github.com/coregx/fanout/adapters/nats"
	"github.com/coregx/fanout/adapters/rabbitmq"
	"github.com/coregx/fanout/adapters/relica"
	"github.com/coregx/fanout/cmd/fanout-server/internal/api"
	"github.com/coregx/fanout/cmd/fanout-server/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fanout-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zl, err := newZap(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := fanout.NewZapLogger(zl)

	logger.Infof("Starting fanout server v%s", api.Version)
	logger.Infof("Configuration loaded: server=%s:%d, database=%s, bridge=%s, send_timeout=%v, max_concurrency=%d",
		cfg.Server.Host, cfg.Server.Port, cfg.Database.Driver, cfg.Bridge.Kind,
		cfg.Fanout.SendTimeout, cfg.Fanout.MaxConcurrency)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Errorf("Failed to close database: %v", closeErr)
		}
	}()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	if err := db.PingContext(startupCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := fanout.ApplyMigrations(startupCtx, db, cfg.Database.Driver); err != nil {
			return err
		}
		logger.Info("Database migrations applied")
	}

	// Create repositories using Relica adapters
	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}

	bridge, err := newBridge(cfg.Bridge, logger)
	if err != nil {
		return err
	}

	registry, err := fanout.NewRegistry(fanout.WithRegistryLogger(logger))
	if err != nil {
		return err
	}

	var observer fanout.DeliveryObserver = &fanout.NoOpObserver{}
	if cfg.Fanout.DeliveryLog {
		observer = fanout.NewLoggingObserver(logger)
	}

	opts := []fanout.Option{
		fanout.WithRegistry(registry),
		fanout.WithLogger(logger),
		fanout.WithSendTimeout(cfg.Fanout.SendTimeout),
		fanout.WithMaxConcurrency(cfg.Fanout.MaxConcurrency),
		fanout.WithObserver(observer),
	}
	if cfg.Fanout.NodeID != "" {
		opts = append(opts, fanout.WithNodeID(cfg.Fanout.NodeID))
	}
	if bridge != nil {
		opts = append(opts, fanout.WithBridge(bridge))
	}

	dispatcher, err := fanout.NewDispatcher(opts...)
	if err != nil {
		if bridge != nil {
			_ = bridge.Close()
		}
		return err
	}
	logger.Infof("Dispatcher created: node=%s", dispatcher.NodeID())

	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	relayDone := make(chan struct{})

	if bridge != nil {
		relay, err := fanout.NewRelay(
			fanout.WithRelayBridge(bridge),
			fanout.WithRelayDispatcher(dispatcher),
			fanout.WithRelayLogger(logger),
		)
		if err != nil {
			return err
		}
		go func() {
			defer close(relayDone)
			if err := relay.Run(relayCtx); err != nil {
				logger.Errorf("Bridge relay stopped: %v", err)
			}
		}()
	} else {
		close(relayDone)
	}

	publisher, err := fanout.NewAlertPublisher(
		fanout.WithPublisherRepositories(repos.HelpAlert, repos.Notification),
		fanout.WithPublisherBroadcaster(dispatcher),
		fanout.WithPublisherLogger(logger),
	)
	if err != nil {
		return err
	}

	center, err := fanout.NewNotificationCenter(
		fanout.WithNotificationCenterRepository(repos.Notification),
		fanout.WithNotificationCenterLogger(logger),
	)
	if err != nil {
		return err
	}

	// Setup HTTP routes
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	handler := api.NewHandler(dispatcher, publisher, center, logger)
	if err := handler.RegisterRoutes(router); err != nil {
		return err
	}

	// Streams run on streamCtx so they end before Shutdown waits on them.
	streamCtx, streamCancel := context.WithCancel(context.Background())
	defer streamCancel()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Errorf("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	streamCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server forced to shutdown: %v", err)
	}

	relayCancel()
	<-relayDone

	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Errorf("Failed to close dispatcher: %v", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// newBridge dials the configured bridge. A nil bridge means single-node mode.
func newBridge(cfg config.BridgeConfig, logger fanout.Logger) (fanout.Bridge, error) {
	switch cfg.Kind {
	case config.BridgeNATS:
		return nats.NewWithNATS(nats.Config{
			URL:     cfg.URL,
			Name:    "fanout-server",
			Subject: cfg.Channel,
		}, nats.WithLogger(logger))
	case config.BridgeRabbitMQ:
		return rabbitmq.NewWithAMQP(rabbitmq.Config{
			URL:      cfg.URL,
			Exchange: cfg.Channel,
		}, rabbitmq.WithLogger(logger))
	case config.BridgeKafka:
		return kafka.NewWithKgo(kafka.Config{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Channel,
			ClientID: "fanout-server",
		}, kafka.WithLogger(logger))
	default:
		return nil, nil
	}
}

func newZap(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
