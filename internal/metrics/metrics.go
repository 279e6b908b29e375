package metrics

import (
	"maps"
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	requests      int64
	exhausted     int64
	probes        map[string]int64
	probeFailures map[string]int64
	attempts      map[string]int64
	failures      map[string]map[string]int64
	evictions     map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Exhausted     int64                     `json:"exhausted"`
	Uptime        time.Duration             `json:"uptime"`
	Replicas      map[string]ReplicaMetrics `json:"replicas"`
	Strategy      string                    `json:"strategy"`
}

type ReplicaMetrics struct {
	Probes        int64            `json:"probes"`
	ProbeFailures int64            `json:"probe_failures"`
	Attempts      int64            `json:"attempts"`
	Evictions     int64            `json:"evictions"`
	Healthy       bool             `json:"healthy"`
	AvgResponse   time.Duration    `json:"avg_response"`
	P50Response   time.Duration    `json:"p50_response"`
	P95Response   time.Duration    `json:"p95_response"`
	P99Response   time.Duration    `json:"p99_response"`
	StatusCodes   map[int]int64    `json:"status_codes"`
	Failures      map[string]int64 `json:"failures"`
}

func (m *Metrics) IncrementRequests() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests++
}

func (m *Metrics) IncrementExhausted() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.exhausted++
}

func (m *Metrics) RecordProbe(replica string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.probes[replica]++
	if !healthy {
		m.probeFailures[replica]++
	}
	m.healthStatus[replica] = healthy
}

// RecordAttempt stores one try against replica. A failed try has a non-empty
// kind and no status code.
func (m *Metrics) RecordAttempt(replica string, duration time.Duration, statusCode int, kind string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.attempts[replica]++

	if kind != "" {
		if m.failures[replica] == nil {
			m.failures[replica] = make(map[string]int64)
		}
		m.failures[replica][kind]++
		return
	}

	m.responseTimes[replica] = append(m.responseTimes[replica], duration)
	if len(m.responseTimes[replica]) > maxSamples {
		m.responseTimes[replica] = m.responseTimes[replica][1:]
	}

	if m.statusCodes[replica] == nil {
		m.statusCodes[replica] = make(map[int]int64)
	}
	m.statusCodes[replica][statusCode]++
}

func (m *Metrics) RecordEviction(replica string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.evictions[replica]++
}

func (m *Metrics) UpdateHealthStatus(replica string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[replica] = healthy
}

func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests: m.requests,
		Exhausted:     m.exhausted,
		Uptime:        time.Since(m.startTime),
		Replicas:      make(map[string]ReplicaMetrics),
		Strategy:      strategy,
	}

	// Collect every replica seen by any counter
	all := make(map[string]bool)
	for r := range m.probes {
		all[r] = true
	}
	for r := range m.attempts {
		all[r] = true
	}
	for r := range m.evictions {
		all[r] = true
	}
	for r := range m.healthStatus {
		all[r] = true
	}

	for r := range all {
		rm := ReplicaMetrics{
			Probes:        m.probes[r],
			ProbeFailures: m.probeFailures[r],
			Attempts:      m.attempts[r],
			Evictions:     m.evictions[r],
			Healthy:       m.healthStatus[r],
			StatusCodes:   maps.Clone(m.statusCodes[r]),
			Failures:      maps.Clone(m.failures[r]),
		}

		durations := m.responseTimes[r]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			rm.AvgResponse = average(sorted)
			rm.P50Response = percentile(sorted, 0.50)
			rm.P95Response = percentile(sorted, 0.95)
			rm.P99Response = percentile(sorted, 0.99)
		}

		snap.Replicas[r] = rm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		probes:        make(map[string]int64),
		probeFailures: make(map[string]int64),
		attempts:      make(map[string]int64),
		failures:      make(map[string]map[string]int64),
		evictions:     make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
