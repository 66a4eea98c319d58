package health

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"dashmirror/internal/catalog"
	"dashmirror/internal/events"
	"dashmirror/internal/models"
	"dashmirror/internal/transport"
	"dashmirror/internal/trust"
)

// Phase names one step of the monitoring cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCollecting Phase = "collecting"
	PhaseProbing    Phase = "probing"
	PhaseCommitting Phase = "committing"
)

const (
	// DefaultCyclePeriod is how often a full monitoring cycle runs.
	DefaultCyclePeriod = 60 * time.Second
	// DefaultCacheInterval is the minimum age before an entry is probed
	// again. It must stay shorter than the cycle period so an entry
	// checked late in one cycle is skipped at the start of the next.
	DefaultCacheInterval = 55 * time.Second
	// DefaultConcurrency caps simultaneous outbound probes; home-network
	// equipment tends to choke on large connection bursts.
	DefaultConcurrency = 5

	maxCycleHistory = 120
)

// Options tune the engine's cycle.
type Options struct {
	CyclePeriod   time.Duration
	CacheInterval time.Duration
	Concurrency   int64
}

func (o *Options) applyDefaults() {
	if o.CyclePeriod <= 0 {
		o.CyclePeriod = DefaultCyclePeriod
	}
	if o.CacheInterval <= 0 || o.CacheInterval >= o.CyclePeriod {
		o.CacheInterval = o.CyclePeriod - 5*time.Second
		if o.CacheInterval <= 0 {
			o.CacheInterval = o.CyclePeriod * 9 / 10
		}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
}

// Engine drives recurring liveness probes over every catalog service with
// an endpoint, under a fixed concurrency ceiling, and commits results back
// to the catalog in one batch per cycle.
type Engine struct {
	store    *catalog.Store
	httpc    *transport.Client
	registry *trust.Registry
	bus      *events.Bus
	opts     Options

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	phase   Phase

	// cycleMu serializes cycles: a new cycle never starts probing before
	// the previous cycle's commit finished.
	cycleMu sync.Mutex

	histMu  sync.RWMutex
	history []models.HealthCycle
}

// NewEngine builds a health engine over the shared transport and catalog.
func NewEngine(store *catalog.Store, httpc *transport.Client, registry *trust.Registry, bus *events.Bus, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		store:    store,
		httpc:    httpc,
		registry: registry,
		bus:      bus,
		opts:     opts,
		phase:    PhaseIdle,
	}
}

// StartMonitoring launches the recurring cycle. Calling it while already
// running is a no-op; two monitoring loops never stack.
func (e *Engine) StartMonitoring() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.run(e.stopCh, e.doneCh)
}

// StopMonitoring prevents new cycles from starting and cancels the sleep
// between cycles. In-flight probes run to completion or their own timeout.
func (e *Engine) StopMonitoring() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// Running reports whether the monitoring loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Phase returns the current cycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

func (e *Engine) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	e.CheckAll(context.Background())

	ticker := time.NewTicker(e.opts.CyclePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			e.CheckAll(context.Background())
		case <-stopCh:
			return
		}
	}
}

// CheckAll executes one full monitoring cycle: collect stale entries,
// probe them under the concurrency ceiling, commit results in one batch.
// Callable independently of the timer, e.g. from a pull-to-refresh.
func (e *Engine) CheckAll(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	defer e.setPhase(PhaseIdle)

	e.setPhase(PhaseCollecting)
	targets, err := e.collect(ctx)
	if err != nil {
		log.Printf("health: collect failed: %v", err)
		return
	}
	if len(targets) == 0 {
		return
	}

	e.setPhase(PhaseProbing)
	samples := e.probeAll(ctx, targets)

	e.setPhase(PhaseCommitting)
	updates := make([]catalog.HealthUpdate, 0, len(samples))
	for _, sample := range samples {
		updates = append(updates, catalog.HealthUpdate{
			ServiceID: sample.ServiceID,
			State:     sample.State,
			CheckedAt: sample.CheckedAt,
		})
	}
	if err := e.store.ApplyHealth(ctx, updates); err != nil {
		log.Printf("health: commit failed: %v", err)
		return
	}

	e.recordCycle(models.HealthCycle{StartedAt: time.Now().UTC(), Samples: samples})
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.HealthUpdated})
	}
}

// RefreshOne probes a single service immediately, bypassing the cache
// interval, and commits the result.
func (e *Engine) RefreshOne(ctx context.Context, serviceID string) (models.HealthState, error) {
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return models.HealthUnknown, err
	}
	if svc.URL == "" {
		return models.HealthUnknown, nil
	}

	e.registerTrust(svc)
	sample := e.probe(ctx, svc)
	if err := e.store.ApplyHealth(ctx, []catalog.HealthUpdate{{
		ServiceID: sample.ServiceID,
		State:     sample.State,
		CheckedAt: sample.CheckedAt,
	}}); err != nil {
		return sample.State, err
	}
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.HealthUpdated})
	}
	return sample.State, nil
}

// collect loads the endpoint-bearing services whose last check is older
// than the cache interval (or that were never checked).
func (e *Engine) collect(ctx context.Context) ([]models.Service, error) {
	services, err := e.store.ListServices(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	targets := services[:0:0]
	for _, svc := range services {
		if svc.URL == "" {
			continue
		}
		if svc.LastCheckedAt != nil && now.Sub(*svc.LastCheckedAt) < e.opts.CacheInterval {
			continue
		}
		e.registerTrust(svc)
		targets = append(targets, svc)
	}
	return targets, nil
}

// registerTrust makes sure the per-entry TLS override reaches the trust
// registry before the probe's handshake consults it.
func (e *Engine) registerTrust(svc models.Service) {
	if !svc.TrustTLS || e.registry == nil {
		return
	}
	if host := trust.HostOf(svc.URL); host != "" {
		e.registry.Trust(host)
	}
}

// probeAll fans the targets out over a worker pool bounded by the
// concurrency ceiling. Each worker owns exactly one entry for its
// lifetime, so commits can arrive in any order without stale overwrites.
func (e *Engine) probeAll(ctx context.Context, targets []models.Service) []models.HealthSample {
	sem := semaphore.NewWeighted(e.opts.Concurrency)
	samples := make([]models.HealthSample, len(targets))

	var wg sync.WaitGroup
	for i, svc := range targets {
		if err := sem.Acquire(ctx, 1); err != nil {
			samples[i] = models.HealthSample{
				ServiceID: svc.ID,
				Name:      svc.Name,
				State:     models.HealthUnhealthy,
				Error:     err.Error(),
				CheckedAt: time.Now().UTC(),
			}
			continue
		}
		wg.Add(1)
		go func(i int, svc models.Service) {
			defer wg.Done()
			defer sem.Release(1)
			samples[i] = e.probe(ctx, svc)
		}(i, svc)
	}
	wg.Wait()
	return samples
}

func (e *Engine) recordCycle(cycle models.HealthCycle) {
	e.histMu.Lock()
	e.history = append(e.history, cycle)
	if len(e.history) > maxCycleHistory {
		e.history = e.history[len(e.history)-maxCycleHistory:]
	}
	e.histMu.Unlock()
}

// Latest returns the most recent completed cycle.
func (e *Engine) Latest() (models.HealthCycle, bool) {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	if len(e.history) == 0 {
		return models.HealthCycle{}, false
	}
	return e.history[len(e.history)-1], true
}

// History returns a copy of the retained cycle history.
func (e *Engine) History() []models.HealthCycle {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	if len(e.history) == 0 {
		return nil
	}
	out := make([]models.HealthCycle, len(e.history))
	copy(out, e.history)
	return out
}
