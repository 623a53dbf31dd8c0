package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magefree/tabletop-server-go/internal/config"
	"github.com/magefree/tabletop-server-go/internal/coordinator"
	"github.com/magefree/tabletop-server-go/internal/server"
	"github.com/magefree/tabletop-server-go/internal/workers"
	"github.com/magefree/tabletop-server-go/internal/ws"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

const healthProbeInterval = 15 * time.Second

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting tabletop server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
	logger.Info("tabletop server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	deps, err := openDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	coord := coordinator.New(deps.store, deps.catalog, coordinator.Options{
		LockTimeout:  cfg.Coordinator.LockTimeout,
		HistoryLimit: cfg.Coordinator.HistoryLimit,
		ReplayDir:    cfg.Coordinator.ReplayDir,
	}, logger.Named("coordinator"))
	logger.Info("session coordinator initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("catalog", cfg.Catalog.Source),
		zap.Duration("lock_timeout", cfg.Coordinator.LockTimeout),
	)

	hub := ws.NewHub(coord, cfg.Server.WebSocket, logger.Named("ws"))
	api := server.NewAPI(coord, deps.catalog, hub, logger.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTP.Address,
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
	}

	health := server.NewHealth(coord, logger.Named("health"))
	grpcServer := server.NewGRPCServer(health, logger.Named("grpc"))

	sched, err := workers.NewScheduler(logger.Named("workers"))
	if err != nil {
		return err
	}
	if cfg.Sweeper.Enabled {
		if err := sched.AddSweep(cfg.Sweeper, coord); err != nil {
			return err
		}
	}
	if deps.cache != nil && cfg.Catalog.CacheTTL > 0 {
		if err := sched.AddCachePurge(cfg.Catalog.CacheTTL, deps.cache); err != nil {
			return err
		}
	}
	if err := sched.AddHealthProbe(healthProbeInterval, health); err != nil {
		return err
	}
	sched.Start()

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPC.Address, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
		defer cancel()

		health.Shutdown()
		hub.Close()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		if serr := sched.Shutdown(); serr != nil {
			logger.Warn("failed to stop workers", zap.Error(serr))
		}
		return err
	})

	logger.Info("tabletop server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTP.Address),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.Bool("sweeper", cfg.Sweeper.Enabled),
	)
	return g.Wait()
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
