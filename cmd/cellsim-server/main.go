// Command cellsim-server serves a coordinator over gRPC and HTTP and drains
// its message queue on a fixed interval.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/cellular-simulator/core"
	"github.com/signalsfoundry/cellular-simulator/internal/config"
	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"github.com/signalsfoundry/cellular-simulator/internal/nbi"
	"github.com/signalsfoundry/cellular-simulator/internal/observability"
	"github.com/signalsfoundry/cellular-simulator/timectrl"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml config file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the gRPC server listens on")
	httpAddr := flag.String("http-addr", "", "TCP address for /healthz, /metrics and /status; \"-\" disables HTTP")
	drain := flag.Duration("drain-interval", 0, "how often the message queue is processed")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cellsim-server: %v\n", err)
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *drain > 0 {
		cfg.Server.DrainInterval = *drain
	}

	log := logging.New(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}
	var httpLis net.Listener
	if cfg.Server.HTTPAddr != "-" {
		httpLis, err = net.Listen("tcp", cfg.Server.HTTPAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.Server.HTTPAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, log, grpcLis, httpLis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

// run serves until ctx is cancelled. httpLis may be nil. A clean shutdown
// returns nil.
func run(ctx context.Context, cfg config.Config, log logging.Logger, grpcLis, httpLis net.Listener) error {
	log = logging.OrNoop(log)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	coord, err := core.NewCoordinator(1,
		core.WithQueueLimit(cfg.Limits.MaxMessages),
		core.WithPayloadLimit(cfg.Limits.MaxPayloadBytes),
		core.WithTowerLimit(cfg.Limits.MaxTowers),
		core.WithCoordinatorLogger(log),
		core.WithCoordinatorMetrics(collector),
	)
	if err != nil {
		return err
	}
	svc := nbi.NewCellularService(coord, log,
		nbi.WithTowerMetrics(collector),
		nbi.WithDefaultDeviceLimit(cfg.Limits.MaxDevicesPerTower),
	)

	grpcServer, health := nbi.NewGRPCServer(svc, collector, log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(ctx, "serving gRPC", logging.String("addr", grpcLis.Addr().String()))
		return grpcServer.Serve(grpcLis)
	})

	var httpServer *http.Server
	if httpLis != nil {
		httpServer = &http.Server{
			Handler:           nbi.NewHTTPHandler(svc, collector.Handler(), log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info(ctx, "serving HTTP", logging.String("addr", httpLis.Addr().String()))
			if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	clock := timectrl.NewTimeController(time.Now(), cfg.Server.DrainInterval, timectrl.RealTime)
	clock.AddListener(func(ctx context.Context, _ time.Time) {
		if coord.Pending() == 0 {
			return
		}
		svc.Drain(ctx)
	})
	g.Go(func() error {
		if err := clock.Run(ctx, 0); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info(context.Background(), "shutting down")
		health.Shutdown()
		grpcServer.GracefulStop()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}
		// Deliver whatever arrived after the last tick.
		if coord.Pending() > 0 {
			svc.Drain(context.Background())
		}
		return nil
	})

	return g.Wait()
}
