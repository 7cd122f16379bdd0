package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "ai-live-hints-service/internal/api/grpc"
	"ai-live-hints-service/internal/app"
	"ai-live-hints-service/internal/config"
	apihttp "ai-live-hints-service/internal/http"
	"ai-live-hints-service/internal/observability"
	"ai-live-hints-service/internal/observability/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start application")
		os.Exit(1)
	}
	defer application.Shutdown()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Error().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
		os.Exit(1)
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	grpcapi.Register(server, application.Session, application.OpenSource, application.Precomputed, application.Validator)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           apihttp.NewRouter(application),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsServer := observability.NewServer(":"+cfg.Observability.MetricsPort, application.Ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("Live hints gRPC server started")
		return server.Serve(lis)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Live hints HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Observability.MetricsPort).Msg("Metrics server started")
		return metricsServer.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers")
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics shutdown incomplete")
		}
		server.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
}
