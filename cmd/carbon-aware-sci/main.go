package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/rshade/carbon-aware-sci/internal/api"
	"github.com/rshade/carbon-aware-sci/internal/config"
	"github.com/rshade/carbon-aware-sci/internal/datasource/factory"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
	"github.com/rshade/carbon-aware-sci/internal/location"
	"github.com/rshade/carbon-aware-sci/internal/logging"
	"github.com/rshade/carbon-aware-sci/internal/metrics"
	"github.com/rshade/carbon-aware-sci/internal/rpc"
	"github.com/rshade/carbon-aware-sci/internal/sci"
)

const grpcDisabled = "off"

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stderr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "[carbon-aware-sci] Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts the HTTP and gRPC servers and blocks until ctx is cancelled or
// a server fails. When ready is non-nil it receives the bound addresses.
func run(ctx context.Context, opts *options, logOut io.Writer, ready chan<- [2]net.Addr) error {
	bootstrap := zerolog.New(logOut).With().Timestamp().Logger()

	cfg, err := config.Load(opts.ConfigPath, bootstrap)
	if err != nil {
		return err
	}
	if opts.HTTPAddr != "" {
		cfg.Server.HTTPAddr = opts.HTTPAddr
	}
	if opts.GRPCAddr != "" {
		cfg.Server.GRPCAddr = opts.GRPCAddr
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger := logging.New(cfg.Logging, logOut).With().Str("service", "carbon-aware-sci").Logger()
	hardware.SetLogger(logger)
	location.SetLogger(logger)

	catalog, err := hardware.DefaultCatalog()
	if err != nil {
		return fmt.Errorf("failed to load hardware catalog: %w", err)
	}

	m := metrics.New()
	sources, err := factory.New(ctx, cfg, factory.Deps{Logger: logger, Metrics: m})
	if err != nil {
		return err
	}
	defer func() {
		if err := sources.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close data sources")
		}
	}()

	aggregator := sci.NewAggregator(sources.Intensity, sources.Inventory, catalog, logger, sci.WithMetrics(m))
	emissions := sci.NewEmissionsService(sources.Intensity, logger)

	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.HTTPAddr, err)
	}
	httpServer := &http.Server{
		Handler:           api.NewServer(aggregator, emissions, m, cfg.Server.CORS, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		grpcLis      net.Listener
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.Server.GRPCAddr != "" && cfg.Server.GRPCAddr != grpcDisabled {
		grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddr, err)
		}
		grpcServer, healthServer = rpc.NewGRPCServer(rpc.NewServer(aggregator, emissions, logger))
	}

	if ready != nil {
		addrs := [2]net.Addr{httpLis.Addr()}
		if grpcLis != nil {
			addrs[1] = grpcLis.Addr()
		}
		ready <- addrs
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpLis.Addr().String()).Msg("starting http server")
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcServer != nil {
		g.Go(func() error {
			logger.Info().Str("addr", grpcLis.Addr().String()).Msg("starting grpc server")
			if err := grpcServer.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if grpcServer != nil {
			stopGRPC(shutdownCtx, grpcServer, healthServer)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown failed")
			return err
		}
		return nil
	})

	return g.Wait()
}

// stopGRPC reports NOT_SERVING to health watchers, then drains in-flight
// RPCs until ctx expires and closes the remaining connections.
func stopGRPC(ctx context.Context, gs *grpc.Server, hs *health.Server) {
	hs.Shutdown()

	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		gs.Stop()
		<-stopped
	}
}
