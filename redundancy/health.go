package redundancy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

const (
	// healthAlpha is the EWMA smoothing factor. With the 0.35 cutoff it takes
	// about five consecutive failures to turn a fully healthy provider
	// unhealthy, and a short success run to bring it back.
	healthAlpha    = 0.2
	unhealthyScore = 0.35

	// statusErrorThreshold is the consecutive-failure run that flips a
	// provider's status to error.
	statusErrorThreshold = 3

	defaultCheckInterval = 60 * time.Second
	defaultProbeTimeout  = 15 * time.Second
)

// trackedProvider is the monitor-owned health state for one backend. The
// score is atomic so health checks on the hot path never take the lock.
type trackedProvider struct {
	provider interfaces.StorageProvider
	score    *atomic.Float64

	mu          sync.Mutex
	status      interfaces.ConnectionStatus
	failures    int
	lastError   string
	lastChecked time.Time
	lastLatency time.Duration
}

// MonitorConfig configures a HealthMonitor. Zero values select defaults.
type MonitorConfig struct {
	// CheckInterval is how often Run re-probes every provider.
	CheckInterval time.Duration

	// ProbeTimeout bounds a single background probe.
	ProbeTimeout time.Duration

	Bus       *Bus
	Collector *Collector
	Resolver  Resolver
	Log       *slog.Logger
}

// HealthMonitor tracks per-provider connection status and a smoothed health
// score fed by real operation outcomes and periodic background probes.
// Reading health state never performs I/O.
type HealthMonitor struct {
	log          *slog.Logger
	bus          *Bus
	collector    *Collector
	resolver     Resolver
	interval     time.Duration
	probeTimeout time.Duration

	mu      sync.RWMutex
	order   []interfaces.ProviderID
	tracked map[interfaces.ProviderID]*trackedProvider
}

// NewHealthMonitor creates a monitor. Register providers before calling Run.
func NewHealthMonitor(cfg MonitorConfig) *HealthMonitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Resolver == nil {
		cfg.Resolver = &DNSResolver{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &HealthMonitor{
		log:          cfg.Log,
		bus:          cfg.Bus,
		collector:    cfg.Collector,
		resolver:     cfg.Resolver,
		interval:     cfg.CheckInterval,
		probeTimeout: cfg.ProbeTimeout,
		tracked:      make(map[interfaces.ProviderID]*trackedProvider),
	}
}

// Register adds a provider to the monitor with a full starting score.
// Registration happens once at wiring time, before Run starts.
func (m *HealthMonitor) Register(p interfaces.StorageProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := p.ID()
	if _, ok := m.tracked[id]; ok {
		return
	}
	m.tracked[id] = &trackedProvider{
		provider: p,
		score:    atomic.NewFloat64(1.0),
		status:   interfaces.StatusDisconnected,
	}
	m.order = append(m.order, id)
}

func (m *HealthMonitor) lookup(id interfaces.ProviderID) *trackedProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracked[id]
}

// RecordOutcome folds one operation result into the provider's health state.
// Caller cancellation is not recorded: it says nothing about the backend.
func (m *HealthMonitor) RecordOutcome(id interfaces.ProviderID, opErr error, latency time.Duration) {
	if opErr != nil && errors.Is(opErr, context.Canceled) {
		return
	}
	t := m.lookup(id)
	if t == nil {
		return
	}

	outcome := 0.0
	if opErr == nil {
		outcome = 1.0
	}

	t.mu.Lock()
	before := t.status
	score := healthAlpha*outcome + (1-healthAlpha)*t.score.Load()
	t.score.Store(score)
	t.lastChecked = time.Now().UTC()
	t.lastLatency = latency
	if opErr != nil {
		t.failures++
		t.lastError = opErr.Error()
		if t.failures >= statusErrorThreshold {
			t.status = interfaces.StatusError
		}
	} else {
		t.failures = 0
		t.lastError = ""
		t.status = interfaces.StatusConnected
	}
	after := t.status
	reason := t.lastError
	t.mu.Unlock()

	m.collector.SetHealthScore(id, score)
	if after != before {
		m.announce(id, before, after, reason)
	}
}

// MarkConnecting flags a provider as initializing.
func (m *HealthMonitor) MarkConnecting(id interfaces.ProviderID) {
	t := m.lookup(id)
	if t == nil {
		return
	}
	t.mu.Lock()
	before := t.status
	t.status = interfaces.StatusConnecting
	t.mu.Unlock()

	if before != interfaces.StatusConnecting {
		m.announce(id, before, interfaces.StatusConnecting, "")
	}
}

func (m *HealthMonitor) announce(id interfaces.ProviderID, from, to interfaces.ConnectionStatus, reason string) {
	m.log.Info("provider status changed",
		slog.String("provider", id.String()),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("reason", reason))
	if m.bus == nil {
		return
	}
	detail := fmt.Sprintf("%s -> %s", from, to)
	if reason != "" {
		detail += ": " + reason
	}
	m.bus.Publish(Event{Type: EventHealthChanged, Provider: id, Detail: detail})
}

// IsHealthy reports whether the provider's score is above the unhealthy
// cutoff. It never blocks and never performs I/O.
func (m *HealthMonitor) IsHealthy(id interfaces.ProviderID) bool {
	t := m.lookup(id)
	if t == nil {
		return false
	}
	return t.score.Load() >= unhealthyScore
}

// Score returns the provider's current health score, zero if unknown.
func (m *HealthMonitor) Score(id interfaces.ProviderID) float64 {
	t := m.lookup(id)
	if t == nil {
		return 0
	}
	return t.score.Load()
}

// Snapshot returns a point-in-time descriptor for one provider.
func (m *HealthMonitor) Snapshot(id interfaces.ProviderID) (interfaces.ProviderDescriptor, bool) {
	t := m.lookup(id)
	if t == nil {
		return interfaces.ProviderDescriptor{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return interfaces.ProviderDescriptor{
		ID:          t.provider.ID(),
		Status:      t.status,
		HealthScore: t.score.Load(),
		LastError:   t.lastError,
		LastChecked: t.lastChecked,
		LastLatency: t.lastLatency,
	}, true
}

// Snapshots returns descriptors for every provider in registration order.
func (m *HealthMonitor) Snapshots() []interfaces.ProviderDescriptor {
	m.mu.RLock()
	order := make([]interfaces.ProviderID, len(m.order))
	copy(order, m.order)
	m.mu.RUnlock()

	descriptors := make([]interfaces.ProviderDescriptor, 0, len(order))
	for _, id := range order {
		if d, ok := m.Snapshot(id); ok {
			descriptors = append(descriptors, d)
		}
	}
	return descriptors
}

// Run re-probes every configured provider on the check interval until the
// context is cancelled. Probes run independently of foreground operations.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.checkAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *HealthMonitor) checkAll(ctx context.Context) {
	m.mu.RLock()
	providers := make([]*trackedProvider, 0, len(m.order))
	for _, id := range m.order {
		providers = append(providers, m.tracked[id])
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, t := range providers {
		if !t.provider.IsConfigured() {
			continue
		}
		wg.Add(1)
		go func(t *trackedProvider) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
			defer cancel()

			start := time.Now()
			err := t.provider.Initialize(probeCtx)
			m.RecordOutcome(t.provider.ID(), err, time.Since(start))
		}(t)
	}
	wg.Wait()
}

// TestResult is the outcome of an on-demand connectivity test.
type TestResult struct {
	Provider interfaces.ProviderID
	OK       bool
	Latency  time.Duration
	Error    string
}

// TestConnection runs an on-demand round-trip against one provider and
// records the outcome. A connectivity failure is classified with a DNS
// preflight of the provider's endpoint so the result distinguishes network
// faults from provider-side rejection.
func (m *HealthMonitor) TestConnection(ctx context.Context, id interfaces.ProviderID) (TestResult, error) {
	t := m.lookup(id)
	if t == nil {
		return TestResult{}, fmt.Errorf("unknown provider %q", id)
	}

	result := TestResult{Provider: id}
	p := t.provider
	if !p.IsConfigured() {
		result.Error = interfaces.ErrNotConfigured.Error()
		return result, nil
	}

	start := time.Now()
	err := m.probe(ctx, p)
	result.Latency = time.Since(start)
	m.RecordOutcome(id, err, result.Latency)
	if err == nil {
		result.OK = true
		return result, nil
	}

	diag := diagnoseFailure(m.resolver, p.Describe().Endpoint, err)
	result.Error = diag.Error()
	m.log.Warn("connection test failed",
		slog.String("provider", id.String()),
		slog.Duration("latency", result.Latency),
		"err", diag)
	return result, nil
}

// probe performs the cheapest operation proving the backend accepts writes:
// store a uniquely named object, read it back, verify, delete. Backends with
// delayed confirmation get a handshake probe only, since a real write there
// blocks for the settlement window.
func (m *HealthMonitor) probe(ctx context.Context, p interfaces.StorageProvider) error {
	if p.Describe().DelayedConfirmation {
		return p.Initialize(ctx)
	}

	key := interfaces.StorageKey{
		Filename: "healthcheck/probe-" + uuid.New().String(),
		KeyID:    "healthcheck",
	}
	payload := []byte(key.Filename)
	blob := interfaces.EncryptedBlob{Bytes: payload, OriginalSize: int64(len(payload))}

	if err := p.StoreData(ctx, blob, key); err != nil {
		return fmt.Errorf("probe store: %w", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.DeleteData(cleanupCtx, key)
	}()

	got, err := p.RetrieveData(ctx, key)
	if err != nil {
		return fmt.Errorf("probe retrieve: %w", err)
	}
	if !bytes.Equal(got.Bytes, payload) {
		return fmt.Errorf("probe verify: retrieved bytes differ from stored")
	}
	return nil
}
