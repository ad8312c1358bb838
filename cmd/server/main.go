package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"liyu1981.xyz/hydro-telemetry-service/pkg/bus"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/config"
	"liyu1981.xyz/hydro-telemetry-service/pkg/db"
	"liyu1981.xyz/hydro-telemetry-service/pkg/gateway"
	iotGrpc "liyu1981.xyz/hydro-telemetry-service/pkg/grpc"
	iotHttp "liyu1981.xyz/hydro-telemetry-service/pkg/http"
	"liyu1981.xyz/hydro-telemetry-service/pkg/ingest"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/processor"
	"liyu1981.xyz/hydro-telemetry-service/pkg/queue"
	"liyu1981.xyz/hydro-telemetry-service/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config, copy .env.example to .env first if in development: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}

func newBus(ctx context.Context, cfg *config.Config) (bus.Bus, error) {
	if cfg.BusType != config.BusTypeRedis {
		return bus.NewMemoryBus(0), nil
	}
	redisBus := bus.NewRedisBus(cfg.RedisOptions())
	if err := redisBus.Ping(ctx); err != nil {
		_ = redisBus.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisOptions().Addr(), err)
	}
	return redisBus, nil
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logger := common.GetLogger()
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	dbInstance, err := db.Open(cfg.Dialector())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = dbInstance.Close() }()

	iotCore := iot.New(dbInstance)
	jobs := queue.New(dbInstance, cfg.QueueOptions())

	distribution, err := newBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = distribution.Close() }()

	limiterStore := iot.NewRateLimiterStore(rate.Limit(cfg.DefaultRate), cfg.DefaultBurst)

	logger.Info("Server configured",
		zap.String("db_type", cfg.DBType),
		zap.String("bus_type", cfg.BusType),
		zap.String("queue", jobs.Name()),
		zap.Bool("ingest", cfg.RunIngest),
		zap.Bool("workers", cfg.RunWorkers),
		zap.Bool("gateway", cfg.RunGateway),
		zap.String("default_limiter",
			fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", cfg.DefaultRate, cfg.DefaultBurst)),
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	var hub *gateway.Hub
	if cfg.RunGateway {
		hub = gateway.NewHub()
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			if err := hub.Consume(ctx, distribution); err != nil {
				errCh <- fmt.Errorf("gateway consume: %w", err)
			}
		}()
	}

	if cfg.RunWorkers {
		proc := processor.New(jobs, iotCore, distribution, processor.Options{
			Timeout:      cfg.ProcessTimeout,
			PollInterval: cfg.Queue.PollInterval,
			Tracer:       tracing.Tracer(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc.Run(ctx, cfg.WorkerCount)
		}()
	}

	if common.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// the HTTP server always runs: probes, state reads and the operator job surface
	rs := &iotHttp.RestfulServer{
		Server:           gin.Default(),
		Iot:              iotCore,
		Jobs:             jobs,
		RateLimiterStore: limiterStore,
		DB:               dbInstance,
	}
	if cfg.RunIngest {
		rs.Ingestor = ingest.New(jobs)
	}
	if hub != nil {
		rs.Hub = hub
		rs.GatewayPath = cfg.GatewayPath
	}
	rs.Setup()

	httpServer := &http.Server{Addr: cfg.HTTPHostPort, Handler: rs.Server}
	go func() {
		logger.Info("Starting HTTP server on: " + cfg.HTTPHostPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed to serve: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	var telemetryServer *iotGrpc.TelemetryServer
	if cfg.RunIngest && cfg.GRPCHostPort != "" {
		listener, err := net.Listen("tcp", cfg.GRPCHostPort)
		if err != nil {
			_ = httpServer.Close()
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCHostPort, err)
		}

		telemetryServer = &iotGrpc.TelemetryServer{
			Ingestor:         rs.Ingestor,
			RateLimiterStore: limiterStore,
		}
		grpcServer = telemetryServer.NewServer()
		go func() {
			logger.Info("Starting gRPC server on: " + cfg.GRPCHostPort)
			if err := grpcServer.Serve(listener); err != nil {
				errCh <- fmt.Errorf("grpc server failed to serve: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case runErr = <-errCh:
		logger.Error("Server component failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// stop accepting reports first, then let workers settle what they hold
	if grpcServer != nil {
		telemetryServer.Health.Shutdown()
		grpcServer.GracefulStop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	cancel()
	wg.Wait()

	logger.Info("Server stopped")
	return runErr
}
