package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/angeloszaimis/replica-failover/config"
	"github.com/angeloszaimis/replica-failover/internal/client"
	"github.com/angeloszaimis/replica-failover/internal/handler"
	"github.com/angeloszaimis/replica-failover/internal/healthcheck"
	"github.com/angeloszaimis/replica-failover/internal/httpserver"
	"github.com/angeloszaimis/replica-failover/internal/metrics"
	"github.com/angeloszaimis/replica-failover/internal/replica"
	"github.com/angeloszaimis/replica-failover/internal/selector"
	"github.com/angeloszaimis/replica-failover/internal/strategy"
	"github.com/angeloszaimis/replica-failover/internal/transport"
	"github.com/angeloszaimis/replica-failover/pkg/logger"
)

// gateway holds the wired failover components.
type gateway struct {
	replicas  replica.Set
	prober    *healthcheck.HTTPProber
	selector  *selector.Selector
	client    *client.Client
	collector *metrics.Collector
}

func main() {
	probe := pflag.Bool("probe", false, "run one discovery pass, print the selected replica and exit")
	printConfig := pflag.Bool("print-config", false, "print the effective configuration as YAML and exit")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	if *printConfig {
		if err := writeConfig(os.Stdout, cfg); err != nil {
			slog.Error("failed to print config", slog.Any("err", err))
			os.Exit(1)
		}
		return
	}

	log := logger.New(os.Stdout, cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gw, err := newGateway(cfg, log)
	if err != nil {
		log.Error("Failed to initialize replicas", slog.Any("err", err))
		os.Exit(1)
	}

	if *probe {
		if err := runProbe(ctx, gw.selector, os.Stdout); err != nil {
			log.Error("Probe failed", slog.Any("err", err))
			os.Exit(1)
		}
		return
	}

	gatewayHandler := handler.NewGatewayHandler(log, gw.client, cfg.Fallback.Path)
	router := setupRouter(gatewayHandler, gw.collector, gw.selector, cfg.Fallback.Path)

	srv, err := httpserver.New(cfg.Server.Address, router, log, httpserver.Timeouts{
		Read:  cfg.Server.ReadTimeout.Std(),
		Write: cfg.Server.WriteTimeout.Std(),
		Idle:  cfg.Server.IdleTimeout.Std(),
	})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	gw.collector.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if interval := cfg.HealthCheck.Interval.Std(); interval > 0 {
		g.Go(func() error {
			healthcheck.Monitor(gctx, gw.replicas, gw.prober, interval, gw.collector, log)
			return nil
		})
	}

	g.Go(func() error {
		log.Info("Gateway listening",
			slog.String("address", srv.Addr()),
			slog.Any("replicas", gw.replicas.Endpoints()),
			slog.String("strategy", gw.selector.StrategyName()))
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Error("Gateway stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func newGateway(cfg *config.Config, log *slog.Logger) (*gateway, error) {
	replicas, err := cfg.ReplicaSet()
	if err != nil {
		return nil, err
	}

	strat, ok := strategy.New(cfg.Selection.Strategy)
	if !ok {
		return nil, fmt.Errorf("unknown selection strategy %q", cfg.Selection.Strategy)
	}

	// Shared by every caller, so no cookie jar: each request carries only
	// the caller's own Cookie header.
	tr := transport.New(transport.NewHTTPClient(cfg.Transport.Timeout.Std()), cfg.Transport.Origin)

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	prober := healthcheck.NewHTTPProber(tr, cfg.HealthCheck.Path, cfg.HealthCheck.Timeout.Std())
	sel := selector.New(replicas, prober, strat, log, collector)

	fallbackPath := cfg.Fallback.Path
	c := client.New(sel, tr, log, collector, client.Options{
		RequestTimeout: cfg.Request.Timeout.Std(),
		Backoff:        cfg.Request.Backoff.Std(),
		OnExhausted: func(err error) {
			log.Warn("No replica left, fallback page advised",
				slog.String("fallback", fallbackPath),
				slog.Any("err", err))
		},
	})

	return &gateway{
		replicas:  replicas,
		prober:    prober,
		selector:  sel,
		client:    c,
		collector: collector,
	}, nil
}

// runProbe runs a single discovery pass and reports the outcome on w.
func runProbe(ctx context.Context, sel *selector.Selector, w io.Writer) error {
	r, err := sel.Discover(ctx)
	if err != nil {
		fmt.Fprintf(w, "no replica available (%d probed)\n", sel.Replicas().Len())
		return err
	}

	_, err = fmt.Fprintf(w, "%s %s\n", r.Label, r.Endpoint)
	return err
}

func writeConfig(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
