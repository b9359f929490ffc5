package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/nainya/orgstore/internal/logger"
	"github.com/nainya/orgstore/internal/metrics"
	"github.com/nainya/orgstore/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC server and the observability endpoints",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.Int("port", 0, "gRPC port (overrides config)")
	f.Int("metrics-port", 0, "metrics/health port (overrides config)")
	f.String("db", "", "database directory (overrides config)")
	f.Bool("in-memory", false, "keep all data in memory")
	f.String("log-level", "", "debug, info, warn or error (overrides config)")
}

// applyServeFlags copies explicitly set flags over the loaded config
func applyServeFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Server.Port, _ = f.GetInt("port")
	}
	if f.Changed("metrics-port") {
		cfg.Server.MetricsPort, _ = f.GetInt("metrics-port")
	}
	if f.Changed("db") {
		cfg.Storage.Path, _ = f.GetString("db")
	}
	if f.Changed("in-memory") {
		cfg.Storage.InMemory, _ = f.GetBool("in-memory")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyServeFlags(cmd); err != nil {
		return err
	}

	logger.InitGlobalLogger(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		WithCaller: cfg.Log.Caller,
	})
	log := logger.GetGlobalLogger()

	dbPath := cfg.Storage.Path
	if cfg.Storage.InMemory {
		dbPath = ""
	}
	log.LogServerStart(cfg.Server.Port, dbPath)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	srv, err := server.NewServer(server.Options{
		Storage: cfg.Storage,
		Metrics: m,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(server.GrpcMetricsInterceptor(m, log)),
	)
	server.RegisterAccountabilityVersionsServer(grpcServer, srv)

	obs := server.NewObservabilityServer(cfg.Server.MetricsPort, prometheus.DefaultGatherer, srv.Ready, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.LogServerReady(cfg.Server.Port)
		return grpcServer.Serve(lis)
	})
	g.Go(obs.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.LogServerShutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTTL)
		defer cancel()
		grpcServer.GracefulStop()
		return obs.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
