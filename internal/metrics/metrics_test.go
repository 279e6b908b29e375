package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/replica-failover/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("IncrementRequests", func() {
		It("should count logical requests", func() {
			m.IncrementRequests()
			m.IncrementRequests()

			snap := m.Snapshot("ordered")
			Expect(snap.TotalRequests).To(Equal(int64(2)))
		})
	})

	Describe("IncrementExhausted", func() {
		It("should count exhausted requests", func() {
			m.IncrementExhausted()

			Expect(m.Snapshot("ordered").Exhausted).To(Equal(int64(1)))
		})
	})

	Describe("RecordProbe", func() {
		It("should count probes and failures per replica", func() {
			m.RecordProbe("http1", false)
			m.RecordProbe("http1", true)
			m.RecordProbe("http2", false)

			snap := m.Snapshot("ordered")
			Expect(snap.Replicas["http1"].Probes).To(Equal(int64(2)))
			Expect(snap.Replicas["http1"].ProbeFailures).To(Equal(int64(1)))
			Expect(snap.Replicas["http1"].Healthy).To(BeTrue())
			Expect(snap.Replicas["http2"].ProbeFailures).To(Equal(int64(1)))
			Expect(snap.Replicas["http2"].Healthy).To(BeFalse())
		})
	})

	Describe("RecordAttempt", func() {
		It("should record response time and status code", func() {
			m.RecordAttempt("http1", 100*time.Millisecond, 200, "")
			m.RecordAttempt("http1", 200*time.Millisecond, 200, "")

			rm := m.Snapshot("ordered").Replicas["http1"]
			Expect(rm.Attempts).To(Equal(int64(2)))
			Expect(rm.AvgResponse).To(Equal(150 * time.Millisecond))
			Expect(rm.StatusCodes[200]).To(Equal(int64(2)))
		})

		It("should count failed attempts by kind without latency", func() {
			m.RecordAttempt("http1", 5*time.Second, 0, "timeout")
			m.RecordAttempt("http1", time.Millisecond, 0, "network")
			m.RecordAttempt("http1", time.Millisecond, 0, "timeout")

			rm := m.Snapshot("ordered").Replicas["http1"]
			Expect(rm.Attempts).To(Equal(int64(3)))
			Expect(rm.Failures).To(HaveKeyWithValue("timeout", int64(2)))
			Expect(rm.Failures).To(HaveKeyWithValue("network", int64(1)))
			Expect(rm.AvgResponse).To(BeZero())
			Expect(rm.StatusCodes).To(BeEmpty())
		})

		It("should calculate percentiles correctly", func() {
			for i := 1; i <= 100; i++ {
				m.RecordAttempt("http1", time.Duration(i)*time.Millisecond, 200, "")
			}

			rm := m.Snapshot("ordered").Replicas["http1"]
			Expect(rm.P50Response).To(BeNumerically("~", 50*time.Millisecond, 1*time.Millisecond))
			Expect(rm.P95Response).To(BeNumerically("~", 95*time.Millisecond, 1*time.Millisecond))
			Expect(rm.P99Response).To(BeNumerically("~", 99*time.Millisecond, 1*time.Millisecond))
		})

		It("should limit stored response times to 1000", func() {
			for i := 1; i <= 1500; i++ {
				m.RecordAttempt("http1", time.Duration(i)*time.Millisecond, 200, "")
			}

			rm := m.Snapshot("ordered").Replicas["http1"]
			Expect(rm.AvgResponse).To(BeNumerically(">", 500*time.Millisecond))
		})
	})

	Describe("RecordEviction", func() {
		It("should count evictions per replica", func() {
			m.RecordEviction("http1")
			m.RecordEviction("http1")

			Expect(m.Snapshot("ordered").Replicas["http1"].Evictions).To(Equal(int64(2)))
		})
	})

	Describe("UpdateHealthStatus", func() {
		It("should track health status changes", func() {
			m.UpdateHealthStatus("http1", true)
			Expect(m.Snapshot("ordered").Replicas["http1"].Healthy).To(BeTrue())

			m.UpdateHealthStatus("http1", false)
			Expect(m.Snapshot("ordered").Replicas["http1"].Healthy).To(BeFalse())
		})
	})

	Describe("Snapshot", func() {
		It("should carry the strategy name", func() {
			Expect(m.Snapshot("sticky").Strategy).To(Equal("sticky"))
		})

		It("should include uptime", func() {
			time.Sleep(10 * time.Millisecond)
			Expect(m.Snapshot("ordered").Uptime).To(BeNumerically(">", 0))
		})

		It("should handle empty metrics", func() {
			snap := m.Snapshot("ordered")
			Expect(snap.TotalRequests).To(BeZero())
			Expect(snap.Replicas).To(BeEmpty())
		})

		It("should not share maps with later updates", func() {
			m.RecordAttempt("http1", time.Millisecond, 200, "")
			snap := m.Snapshot("ordered")

			m.RecordAttempt("http1", time.Millisecond, 200, "")
			Expect(snap.Replicas["http1"].StatusCodes[200]).To(Equal(int64(1)))
		})
	})
})
