package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/replica-failover/internal/fault"
	"github.com/angeloszaimis/replica-failover/internal/metrics"
	"github.com/angeloszaimis/replica-failover/internal/replica"
	"github.com/angeloszaimis/replica-failover/internal/timeout"
	"github.com/angeloszaimis/replica-failover/internal/transport"
)

const (
	DefaultPath    = "/health"
	DefaultTimeout = 3 * time.Second
)

//go:generate mockgen -source=healthcheck.go -destination=../test/mocks/prober_mock.go -package=mocks

// Prober checks whether a single replica is able to serve requests.
type Prober interface {
	Probe(ctx context.Context, r replica.Replica) error
}

// HTTPProber sends GET {endpoint}{path} and waits at most timeout for it.
type HTTPProber struct {
	transport *transport.Transport
	path      string
	timeout   time.Duration
}

func NewHTTPProber(t *transport.Transport, path string, timeout time.Duration) *HTTPProber {
	if path == "" {
		path = DefaultPath
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPProber{
		transport: t,
		path:      path,
		timeout:   timeout,
	}
}

// Probe returns nil for a 2xx answer. Failures are *fault.Error values of
// kind Status, Network, Timeout or Canceled.
func (p *HTTPProber) Probe(ctx context.Context, r replica.Replica) error {
	healthURL, err := r.Resolve(p.path)
	if err != nil {
		return fault.Internal("probe", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return fault.Internal("probe", err)
	}
	req.Header.Set("User-Agent", "replica-failover-healthcheck/1.0")

	res, err := timeout.Race(ctx, p.timeout, func() (*http.Response, error) {
		return p.transport.Send(req)
	}, transport.Drain)
	if err != nil {
		return fault.WithReplica(err, r.Label)
	}
	defer transport.Drain(res)

	if !transport.IsSuccess(res.StatusCode) {
		return fault.Status(r.Label, res.StatusCode)
	}

	return nil
}

// Monitor probes every replica on each tick and records the outcome in the
// collector. It only observes: selection state is left to the selector.
func Monitor(
	ctx context.Context,
	replicas replica.Set,
	prober Prober,
	interval time.Duration,
	collector *metrics.Collector,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := make(map[int]bool, len(replicas))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health monitor stopped")
			return

		case <-ticker.C:
			for _, r := range replicas {
				start := time.Now()
				err := prober.Probe(ctx, r)
				if fault.KindOf(err) == fault.KindCanceled {
					continue
				}

				up := err == nil
				collector.Emit(metrics.MetricEvent{
					Type:      metrics.EventHealthChanged,
					Timestamp: time.Now(),
					Replica:   r.Label,
					Duration:  time.Since(start),
					Healthy:   up,
				})

				previous, seen := healthy[r.Index]
				healthy[r.Index] = up
				if seen && previous == up {
					continue
				}

				if up {
					logger.Info("Replica is up",
						slog.String("replica", r.Label),
						slog.String("endpoint", r.Endpoint.String()))
				} else {
					logger.Warn("Replica is down",
						slog.String("replica", r.Label),
						slog.String("endpoint", r.Endpoint.String()),
						slog.Any("err", err))
				}
			}
		}
	}
}
