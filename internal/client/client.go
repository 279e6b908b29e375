package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/replica-failover/internal/fault"
	"github.com/angeloszaimis/replica-failover/internal/metrics"
	"github.com/angeloszaimis/replica-failover/internal/replica"
	"github.com/angeloszaimis/replica-failover/internal/selector"
	"github.com/angeloszaimis/replica-failover/internal/timeout"
	"github.com/angeloszaimis/replica-failover/internal/transport"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultBackoff        = 500 * time.Millisecond

	// RequestIDHeader carries the id shared by every attempt of one logical
	// request.
	RequestIDHeader = "X-Request-ID"
)

// Options tune the failover loop. Zero durations take the defaults and
// negative ones disable the timeout or the backoff.
type Options struct {
	RequestTimeout time.Duration
	Backoff        time.Duration

	// OnExhausted is called with the *fault.ExhaustedError before it is
	// returned.
	OnExhausted func(err error)
}

// Request describes one logical request. Body is replayed on every attempt.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type Client struct {
	selector  *selector.Selector
	transport *transport.Transport
	logger    *slog.Logger
	collector *metrics.Collector
	options   Options
}

// New builds a client. collector may be nil.
func New(
	sel *selector.Selector,
	tr *transport.Transport,
	logger *slog.Logger,
	collector *metrics.Collector,
	opts Options,
) *Client {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Backoff == 0 {
		opts.Backoff = DefaultBackoff
	}

	return &Client{
		selector:  sel,
		transport: tr,
		logger:    logger.With(slog.String("component", "client")),
		collector: collector,
		options:   opts,
	}
}

func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

// Post sends payload encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fault.Internal("encode payload", err)
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	return c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   path,
		Header: header,
		Body:   body,
	})
}

// Do runs req against the replicas, trying each at most once. A returned
// response is either 2xx, 401 or a non-5xx client error; the caller owns its
// body.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	log := c.logger.With(
		slog.String("request_id", requestID),
		slog.String("method", req.Method),
		slog.String("path", req.Path))

	c.collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})

	maxAttempts := c.selector.Replicas().Len()
	lastStatus := 0
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		target, err := c.selector.Discover(ctx)
		if err == nil {
			var resp *http.Response
			resp, err = c.send(ctx, target, req, requestID)
			if err == nil {
				if !isServerFailure(resp.StatusCode) {
					log.Debug("Request completed",
						slog.String("replica", target.Label),
						slog.Int("status", resp.StatusCode),
						slog.Int("attempt", attempt+1))
					return resp, nil
				}

				log.Warn("Replica answered with a server error, failing over",
					slog.String("replica", target.Label),
					slog.Int("status", resp.StatusCode),
					slog.Int("attempt", attempt+1))

				transport.Drain(resp)
				lastStatus = resp.StatusCode
				c.evict(target)
				continue
			}
		}

		if !fault.IsRetryable(err) {
			log.Error("Request failed", slog.Int("attempt", attempt+1), slog.Any("err", err))
			return nil, err
		}

		log.Warn("Attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxAttempts),
			slog.Any("err", err))

		lastErr = err
		if target.Endpoint != nil {
			c.evict(target)
		}

		if attempt < maxAttempts-1 {
			if err := c.wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	exhausted := &fault.ExhaustedError{
		Attempts:   maxAttempts,
		LastStatus: lastStatus,
		Last:       lastErr,
	}

	log.Error("All replicas exhausted", slog.Any("err", exhausted))
	c.collector.Emit(metrics.MetricEvent{Type: metrics.EventExhausted})

	if c.options.OnExhausted != nil {
		c.options.OnExhausted(exhausted)
	}

	return nil, exhausted
}

// send performs one attempt against target under the request timeout. Any
// error is a *fault.Error tagged with the replica.
func (c *Client) send(ctx context.Context, target replica.Replica, req Request, requestID string) (*http.Response, error) {
	endpoint, err := target.Resolve(req.Path)
	if err != nil {
		return nil, fault.Internal("resolve", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fault.Internal("build request", err)
	}
	for key, values := range req.Header {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	httpReq.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := timeout.Race(ctx, c.options.RequestTimeout, func() (*http.Response, error) {
		return c.transport.Send(httpReq)
	}, transport.Drain)

	event := metrics.MetricEvent{
		Type:     metrics.EventAttempt,
		Replica:  target.Label,
		Duration: time.Since(start),
	}
	if err != nil {
		event.Kind = fault.KindOf(err).String()
		c.collector.Emit(event)
		return nil, fault.WithReplica(err, target.Label)
	}

	event.StatusCode = resp.StatusCode
	c.collector.Emit(event)

	return resp, nil
}

func (c *Client) evict(target replica.Replica) {
	c.selector.Evict(target.Index)
	c.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventEviction,
		Replica: target.Label,
	})
}

func (c *Client) wait(ctx context.Context) error {
	if c.options.Backoff <= 0 {
		return nil
	}

	timer := time.NewTimer(c.options.Backoff)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fault.Canceled(ctx.Err())
	}
}

// isServerFailure reports statuses that move the request to the next replica
// without backoff. 2xx, 401 and other 4xx answers are handed to the caller.
func isServerFailure(code int) bool {
	return code == 0 || code >= http.StatusInternalServerError
}

// IsExhausted reports whether err means every replica was tried.
func IsExhausted(err error) bool {
	return errors.Is(err, fault.ErrExhausted)
}
