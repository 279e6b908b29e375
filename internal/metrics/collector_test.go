package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/replica-failover/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
		time.Sleep(10 * time.Millisecond) // Allow goroutine to finish
	})

	Describe("Emit", func() {
		It("should be a no-op on a nil collector", func() {
			var nilCollector *metrics.Collector
			Expect(func() {
				nilCollector.Emit(metrics.MetricEvent{Type: metrics.EventExhausted})
			}).NotTo(Panic())
		})

		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, log)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 10; i++ {
					small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
				}
			}()
			Eventually(done).Should(BeClosed())
		})
	})

	Describe("Start and event processing", func() {
		It("should process EventRequestReceived", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})

			Eventually(func() int64 {
				return collector.Snapshot("ordered").TotalRequests
			}).Should(Equal(int64(1)))
		})

		It("should process EventProbe", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventProbe, Replica: "http1", Healthy: false})

			Eventually(func() int64 {
				return collector.Snapshot("ordered").Replicas["http1"].ProbeFailures
			}).Should(Equal(int64(1)))
		})

		It("should process EventAttempt", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventAttempt,
				Replica:    "http1",
				Duration:   100 * time.Millisecond,
				StatusCode: 200,
			})

			Eventually(func() int64 {
				return collector.Snapshot("ordered").Replicas["http1"].StatusCodes[200]
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot("ordered").Replicas["http1"].AvgResponse).To(Equal(100 * time.Millisecond))
		})

		It("should process EventEviction and EventExhausted", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventEviction, Replica: "http2"})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventExhausted})

			Eventually(func() int64 {
				return collector.Snapshot("ordered").Exhausted
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot("ordered").Replicas["http2"].Evictions).To(Equal(int64(1)))
		})

		It("should process EventHealthChanged", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventHealthChanged, Replica: "http3", Healthy: true})

			Eventually(func() bool {
				return collector.Snapshot("ordered").Replicas["http3"].Healthy
			}).Should(BeTrue())
		})

		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.EventChannel() <- metrics.MetricEvent{Type: metrics.EventRequestReceived}
			}

			collector.Start(ctx)
			cancel()

			Eventually(func() int64 {
				return collector.Snapshot("ordered").TotalRequests
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			Eventually(func() int64 {
				return collector.Snapshot("sticky").TotalRequests
			}).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler("sticky")(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.Strategy).To(Equal("sticky"))
			Expect(snap.TotalRequests).To(Equal(int64(1)))
		})

		It("should serve a single replica", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventEviction, Replica: "http2"})
			Eventually(func() int64 {
				return collector.Snapshot("ordered").Replicas["http2"].Evictions
			}).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler("ordered")(rec, httptest.NewRequest(http.MethodGet, "/metrics?replica=http2", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var rm metrics.ReplicaMetrics
			Expect(json.Unmarshal(rec.Body.Bytes(), &rm)).To(Succeed())
			Expect(rm.Evictions).To(Equal(int64(1)))
		})

		It("should answer 404 for an unknown replica", func() {
			rec := httptest.NewRecorder()
			collector.Handler("ordered")(rec, httptest.NewRequest(http.MethodGet, "/metrics?replica=nope", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})
