package selector

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/replica-failover/internal/fault"
	"github.com/angeloszaimis/replica-failover/internal/healthcheck"
	"github.com/angeloszaimis/replica-failover/internal/metrics"
	"github.com/angeloszaimis/replica-failover/internal/replica"
	"github.com/angeloszaimis/replica-failover/internal/strategy"
)

// State is a copy of the selection at one point in time. ActiveIndex is
// strategy.NoCache and ActiveEndpoint nil when nothing is selected.
type State struct {
	ActiveIndex    int
	ActiveEndpoint *url.URL
	KnownGood      []int
}

type Selector struct {
	replicas  replica.Set
	prober    healthcheck.Prober
	strategy  strategy.Strategy
	logger    *slog.Logger
	collector *metrics.Collector

	mutex     sync.Mutex
	active    int
	knownGood map[int]struct{}
}

// New builds a selector over replicas. collector may be nil.
func New(
	replicas replica.Set,
	prober healthcheck.Prober,
	strat strategy.Strategy,
	logger *slog.Logger,
	collector *metrics.Collector,
) *Selector {
	if strat == nil {
		strat = strategy.NewOrderedStrategy()
	}

	return &Selector{
		replicas:  replicas,
		prober:    prober,
		strategy:  strat,
		logger:    logger.With(slog.String("component", "selector")),
		collector: collector,
		active:    strategy.NoCache,
		knownGood: make(map[int]struct{}),
	}
}

// Discover probes replicas until one is healthy and selects it. Each call
// probes afresh; with the ordered strategy the first healthy replica in set
// order always wins. It fails with fault.ErrNoReplicaAvailable once every
// replica has been probed, or with a canceled fault if ctx ends.
func (s *Selector) Discover(ctx context.Context) (replica.Replica, error) {
	order := s.strategy.Order(len(s.replicas), s.cachedIndex())

	s.logger.Debug("Looking for an active replica", slog.Any("order", order))

	for _, i := range order {
		if err := ctx.Err(); err != nil {
			return replica.Replica{}, fault.Canceled(err)
		}

		candidate := s.replicas[i]
		start := time.Now()
		err := s.prober.Probe(ctx, candidate)
		if fault.KindOf(err) == fault.KindCanceled {
			return replica.Replica{}, err
		}

		s.collector.Emit(metrics.MetricEvent{
			Type:     metrics.EventProbe,
			Replica:  candidate.Label,
			Duration: time.Since(start),
			Healthy:  err == nil,
		})

		if err == nil {
			s.selectIndex(i)
			s.logger.Info("Active replica found",
				slog.String("replica", candidate.Label),
				slog.String("endpoint", candidate.Endpoint.String()))
			return candidate, nil
		}

		s.logger.Warn("Replica unavailable, trying next",
			slog.String("replica", candidate.Label),
			slog.String("endpoint", candidate.Endpoint.String()),
			slog.Any("err", err))
	}

	s.reset()
	s.logger.Error("No replica is available", slog.Int("probed", len(order)))

	return replica.Replica{}, fault.NoReplica(len(order))
}

// Evict marks the replica at index as presumed down and clears the active
// selection.
func (s *Selector) Evict(index int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.knownGood, index)
	s.active = strategy.NoCache
}

// Active returns the selected replica, if any.
func (s *Selector) Active() (replica.Replica, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.active == strategy.NoCache {
		return replica.Replica{}, false
	}
	return s.replicas[s.active], true
}

func (s *Selector) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state := State{
		ActiveIndex: s.active,
		KnownGood:   make([]int, 0, len(s.knownGood)),
	}
	if s.active != strategy.NoCache {
		state.ActiveEndpoint = s.replicas[s.active].Endpoint
	}
	for i := range s.knownGood {
		state.KnownGood = append(state.KnownGood, i)
	}
	sort.Ints(state.KnownGood)

	return state
}

func (s *Selector) Replicas() replica.Set {
	return s.replicas
}

func (s *Selector) StrategyName() string {
	return s.strategy.Name()
}

func (s *Selector) cachedIndex() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.active
}

// selectIndex replaces the known-good set with index alone.
func (s *Selector) selectIndex(index int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.active = index
	s.knownGood = map[int]struct{}{index: {}}
}

func (s *Selector) reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.active = strategy.NoCache
	s.knownGood = make(map[int]struct{})
}
