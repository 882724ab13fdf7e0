package redundancy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxalabs/storage-redundancy-engine/cryptoutils"
	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// Timeouts bounds a single provider attempt per backend class. The ledger
// runs on a settlement window measured in minutes, not seconds, so its
// budget is far larger than the object stores'.
type Timeouts struct {
	Firebase time.Duration
	Dropbox  time.Duration
	IPFS     time.Duration
	Arweave  time.Duration
}

// DefaultTimeouts returns the per-class attempt budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Firebase: 30 * time.Second,
		Dropbox:  30 * time.Second,
		IPFS:     2 * time.Minute,
		Arweave:  20 * time.Minute,
	}
}

// For returns the attempt budget for a provider, falling back to the
// class default where unset.
func (t Timeouts) For(id interfaces.ProviderID) time.Duration {
	d := DefaultTimeouts()
	var set, fallback time.Duration
	switch id {
	case interfaces.ProviderFirebase:
		set, fallback = t.Firebase, d.Firebase
	case interfaces.ProviderDropbox:
		set, fallback = t.Dropbox, d.Dropbox
	case interfaces.ProviderIPFS:
		set, fallback = t.IPFS, d.IPFS
	case interfaces.ProviderArweave:
		set, fallback = t.Arweave, d.Arweave
	default:
		fallback = 30 * time.Second
	}
	if set <= 0 {
		return fallback
	}
	return set
}

// ProviderState pairs a provider's static facts with its live health
// descriptor, for the status API.
type ProviderState struct {
	Info       interfaces.ProviderInfo
	Configured bool
	Descriptor interfaces.ProviderDescriptor
}

// ManagerConfig wires a Manager. Providers, Cipher, Index and ActiveKeyID
// are required; everything else defaults.
type ManagerConfig struct {
	// Providers in registration order. Registration order is the tiebreak
	// whenever health scores are equal.
	Providers []interfaces.StorageProvider

	// Primary is attempted first on every operation. Defaults to the first
	// registered provider.
	Primary interfaces.ProviderID

	// Level is the starting redundancy level.
	Level interfaces.RedundancyLevel

	// ActiveKeyID selects the keyring entry that seals new writes.
	ActiveKeyID string

	Cipher    *cryptoutils.BlobCipher
	Monitor   *HealthMonitor
	Index     *ReplicaIndex
	Bus       *Bus
	Collector *Collector
	Timeouts  Timeouts
	Log       *slog.Logger
}

// Manager is the redundancy facade: one Store/Retrieve/Delete surface that
// fans out across heterogeneous providers, tracks replica placement, and
// answers health questions without touching the network. Plaintext never
// crosses it: data is sealed before the first provider is contacted and
// opened only after a replica is fetched.
type Manager struct {
	log       *slog.Logger
	cipher    *cryptoutils.BlobCipher
	monitor   *HealthMonitor
	index     *ReplicaIndex
	bus       *Bus
	collector *Collector
	timeouts  Timeouts
	activeKey string

	providers []interfaces.StorageProvider
	byID      map[interfaces.ProviderID]interfaces.StorageProvider

	mu      sync.RWMutex
	primary interfaces.ProviderID
	level   interfaces.RedundancyLevel
}

// NewManager validates the wiring and registers every provider with the
// health monitor. The provider set is fixed for the manager's lifetime.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if cfg.Cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("replica index is required")
	}
	if cfg.ActiveKeyID == "" {
		return nil, errors.New("active key id is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Bus == nil {
		cfg.Bus = NewBus(cfg.Log)
	}
	if cfg.Collector == nil {
		cfg.Collector = NewCollector()
	}
	if cfg.Monitor == nil {
		cfg.Monitor = NewHealthMonitor(MonitorConfig{Bus: cfg.Bus, Collector: cfg.Collector, Log: cfg.Log})
	}

	byID := make(map[interfaces.ProviderID]interfaces.StorageProvider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		id := p.ID()
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate provider %q", id)
		}
		byID[id] = p
		cfg.Monitor.Register(p)
	}

	primary := cfg.Primary
	if primary == "" {
		primary = cfg.Providers[0].ID()
	}
	if _, ok := byID[primary]; !ok {
		return nil, fmt.Errorf("primary provider %q is not registered", primary)
	}

	return &Manager{
		log:       cfg.Log,
		cipher:    cfg.Cipher,
		monitor:   cfg.Monitor,
		index:     cfg.Index,
		bus:       cfg.Bus,
		collector: cfg.Collector,
		timeouts:  cfg.Timeouts,
		activeKey: cfg.ActiveKeyID,
		providers: cfg.Providers,
		byID:      byID,
		primary:   primary,
		level:     cfg.Level,
	}, nil
}

// Initialize brings up every configured provider concurrently. Secondary
// failures land on health descriptors only; the call fails iff the primary
// could not be initialized.
func (m *Manager) Initialize(ctx context.Context) error {
	results := make([]error, len(m.providers))

	var g errgroup.Group
	for i, p := range m.providers {
		g.Go(func() error {
			if !p.IsConfigured() {
				results[i] = interfaces.ErrNotConfigured
				m.log.Warn("provider not configured, skipping", slog.String("provider", p.ID().String()))
				return nil
			}
			m.monitor.MarkConnecting(p.ID())

			opCtx, cancel := context.WithTimeout(ctx, m.timeouts.For(p.ID()))
			defer cancel()

			start := time.Now()
			err := p.Initialize(opCtx)
			m.monitor.RecordOutcome(p.ID(), err, time.Since(start))
			results[i] = err
			if err != nil {
				m.log.Error("provider initialization failed", slog.String("provider", p.ID().String()), "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.RLock()
	primary := m.primary
	m.mu.RUnlock()

	errs := make(map[interfaces.ProviderID]error)
	for i, err := range results {
		if err != nil {
			errs[m.providers[i].ID()] = err
		}
	}
	if err := errs[primary]; err != nil {
		return &interfaces.InitError{Primary: primary, Errors: errs}
	}
	if len(errs) > 0 {
		m.log.Warn("running without some providers",
			slog.Int("failed", len(errs)),
			slog.Int("total", len(m.providers)))
	}
	return nil
}

// Store seals the plaintext under the active key and writes it to enough
// providers to satisfy the current redundancy level. An encryption failure
// aborts before any provider is contacted. On a redundancy shortfall the
// replicas that did confirm stay stored and tracked, so a retry cannot
// lose them.
func (m *Manager) Store(ctx context.Context, plaintext []byte, filename string) error {
	key := interfaces.StorageKey{Filename: filename, KeyID: m.activeKey}
	if err := key.Validate(); err != nil {
		return err
	}
	blob, err := m.cipher.Encrypt(plaintext, key)
	if err != nil {
		return err
	}
	return m.storeBlob(ctx, blob, key)
}

// StoreEncrypted stores an already sealed envelope under its original key.
// The envelope shape is validated but never opened; restore tooling uses
// this to move ciphertext without holding key material.
func (m *Manager) StoreEncrypted(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	declared, err := cryptoutils.DeclaredSize(blob.Bytes)
	if err != nil {
		return err
	}
	if blob.OriginalSize == 0 {
		blob.OriginalSize = declared
	}
	return m.storeBlob(ctx, blob, key)
}

func (m *Manager) storeBlob(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error {
	candidates, threshold := m.storeCandidates()
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no configured providers", interfaces.ErrProviderUnavailable)
	}
	for _, p := range candidates {
		if !m.monitor.IsHealthy(p.ID()) {
			m.log.Warn("storing through unhealthy providers to meet redundancy",
				slog.String("filename", key.Filename),
				slog.Int("required", threshold))
			break
		}
	}

	digest := sha256.Sum256(blob.Bytes)
	contentHash := hex.EncodeToString(digest[:])

	type attempt struct {
		id  interfaces.ProviderID
		err error
	}
	results := make([]attempt, len(candidates))

	var g errgroup.Group
	for i, p := range candidates {
		g.Go(func() error {
			opCtx, cancel := context.WithTimeout(ctx, m.timeouts.For(p.ID()))
			defer cancel()

			start := time.Now()
			err := p.StoreData(opCtx, blob, key)
			elapsed := time.Since(start)
			m.monitor.RecordOutcome(p.ID(), err, elapsed)
			m.collector.ObserveOperation(p.ID(), "store", elapsed, err)
			results[i] = attempt{id: p.ID(), err: err}
			return nil
		})
	}
	_ = g.Wait()

	confirmed := 0
	errs := make(map[interfaces.ProviderID]error)
	for _, r := range results {
		if r.err != nil {
			errs[r.id] = r.err
			continue
		}
		confirmed++
		// Tracking outlives the caller's context: the write already happened.
		err := m.index.Record(context.Background(), Replica{
			Filename:    key.Filename,
			KeyID:       key.KeyID,
			Provider:    r.id,
			ContentHash: contentHash,
			Size:        int64(len(blob.Bytes)),
		})
		if err != nil {
			m.log.Error("failed to track confirmed replica",
				slog.String("filename", key.Filename),
				slog.String("provider", r.id.String()),
				"err", err)
		}
	}

	if confirmed > 0 {
		m.bus.Publish(Event{Type: EventStatisticsChanged, Filename: key.Filename, Detail: "store"})
	}
	if confirmed < threshold {
		return &interfaces.RedundancyError{Required: threshold, Confirmed: confirmed, Errors: errs}
	}

	m.log.Info("file stored",
		slog.String("filename", key.Filename),
		slog.Int("replicas", confirmed),
		slog.Int("required", threshold))
	return nil
}

// storeCandidates picks the providers a store should target: the primary
// first, then the healthiest of the remaining configured providers, up to
// the redundancy threshold. When healthy providers cannot cover the
// threshold, unhealthy ones are appended as optimistic attempts rather
// than silently lowering the target.
func (m *Manager) storeCandidates() ([]interfaces.StorageProvider, int) {
	m.mu.RLock()
	primary := m.primary
	level := m.level
	m.mu.RUnlock()

	var configured []interfaces.StorageProvider
	for _, p := range m.providers {
		if p.IsConfigured() {
			configured = append(configured, p)
		}
	}
	threshold := level.Threshold(len(configured))

	var healthy, unhealthy []interfaces.StorageProvider
	for _, p := range configured {
		if m.monitor.IsHealthy(p.ID()) {
			healthy = append(healthy, p)
		} else {
			unhealthy = append(unhealthy, p)
		}
	}
	m.orderForAttempt(healthy, primary)
	m.orderForAttempt(unhealthy, primary)

	candidates := healthy
	if len(candidates) > threshold {
		candidates = candidates[:threshold]
	}
	for len(candidates) < threshold && len(unhealthy) > 0 {
		candidates = append(candidates, unhealthy[0])
		unhealthy = unhealthy[1:]
	}
	return candidates, threshold
}

// orderForAttempt sorts providers in place: primary first, then descending
// health score, registration order as the tiebreak.
func (m *Manager) orderForAttempt(providers []interfaces.StorageProvider, primary interfaces.ProviderID) {
	sort.SliceStable(providers, func(i, j int) bool {
		a, b := providers[i].ID(), providers[j].ID()
		if a == primary || b == primary {
			return a == primary && b != primary
		}
		return m.monitor.Score(a) > m.monitor.Score(b)
	})
}

// Retrieve fetches one replica and opens it. Providers are tried
// sequentially, primary first, then by descending health; the first
// replica that arrives is decrypted. A decryption failure is terminal:
// every replica holds the same ciphertext, so trying another cannot help.
func (m *Manager) Retrieve(ctx context.Context, filename string) ([]byte, error) {
	blob, key, err := m.retrieveBlob(ctx, filename)
	if err != nil {
		return nil, err
	}
	return m.cipher.Decrypt(blob, key)
}

// RetrieveEncrypted fetches the stored envelope without opening it, for
// ciphertext-level export.
func (m *Manager) RetrieveEncrypted(ctx context.Context, filename string) (interfaces.EncryptedBlob, interfaces.StorageKey, error) {
	return m.retrieveBlob(ctx, filename)
}

func (m *Manager) retrieveBlob(ctx context.Context, filename string) (interfaces.EncryptedBlob, interfaces.StorageKey, error) {
	key := interfaces.StorageKey{Filename: filename, KeyID: m.activeKey}
	keyID, _, err := m.index.Lookup(ctx, filename)
	switch {
	case err == nil:
		key.KeyID = keyID
	case errors.Is(err, interfaces.ErrNotFound):
		// Untracked, possibly written before the index existed. Ask the
		// providers directly and assume the active key.
	default:
		return interfaces.EncryptedBlob{}, key, err
	}

	order := m.retrieveOrder(ctx, filename)
	if len(order) == 0 {
		return interfaces.EncryptedBlob{}, key, fmt.Errorf("%w: no configured providers", interfaces.ErrProviderUnavailable)
	}

	notFound := 0
	errs := make(map[interfaces.ProviderID]error)
	for _, p := range order {
		if err := ctx.Err(); err != nil {
			return interfaces.EncryptedBlob{}, key, err
		}

		opCtx, cancel := context.WithTimeout(ctx, m.timeouts.For(p.ID()))
		start := time.Now()
		blob, err := p.RetrieveData(opCtx, key)
		elapsed := time.Since(start)
		cancel()

		m.monitor.RecordOutcome(p.ID(), err, elapsed)
		m.collector.ObserveOperation(p.ID(), "retrieve", elapsed, err)
		if err == nil {
			return blob, key, nil
		}
		errs[p.ID()] = err
		if errors.Is(err, interfaces.ErrNotFound) {
			notFound++
		}
		m.log.Debug("retrieve attempt failed",
			slog.String("filename", filename),
			slog.String("provider", p.ID().String()),
			"err", err)
	}

	if notFound == len(order) {
		return interfaces.EncryptedBlob{}, key, fmt.Errorf("%w: %q has no replica", interfaces.ErrNotFound, filename)
	}
	return interfaces.EncryptedBlob{}, key,
		fmt.Errorf("%w: every retrieval attempt for %q failed: %s", interfaces.ErrProviderUnavailable, filename, providerErrorSummary(errs))
}

// retrieveOrder returns the providers worth asking for a file: the known
// holders when the file is tracked, every configured provider otherwise,
// primary first and then by descending health.
func (m *Manager) retrieveOrder(ctx context.Context, filename string) []interfaces.StorageProvider {
	m.mu.RLock()
	primary := m.primary
	m.mu.RUnlock()

	holders, err := m.index.Holders(ctx, filename)
	if err != nil {
		m.log.Warn("failed to read replica index", slog.String("filename", filename), "err", err)
	}

	var pool []interfaces.StorageProvider
	for _, id := range holders {
		if p, ok := m.byID[id]; ok && p.IsConfigured() {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		for _, p := range m.providers {
			if p.IsConfigured() {
				pool = append(pool, p)
			}
		}
	}
	m.orderForAttempt(pool, primary)
	return pool
}

// RetrieveRaced fetches a file by racing every candidate provider
// concurrently and decrypting the first replica that arrives. Losers are
// cancelled. It trades provider load for latency; callers that prefer the
// cheaper sequential path use Retrieve.
func (m *Manager) RetrieveRaced(ctx context.Context, filename string) ([]byte, error) {
	key := interfaces.StorageKey{Filename: filename, KeyID: m.activeKey}
	keyID, _, err := m.index.Lookup(ctx, filename)
	switch {
	case err == nil:
		key.KeyID = keyID
	case errors.Is(err, interfaces.ErrNotFound):
	default:
		return nil, err
	}

	order := m.retrieveOrder(ctx, filename)
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no configured providers", interfaces.ErrProviderUnavailable)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		id   interfaces.ProviderID
		blob interfaces.EncryptedBlob
		err  error
	}
	outcomes := make(chan outcome, len(order))
	for _, p := range order {
		go func(p interfaces.StorageProvider) {
			opCtx, opCancel := context.WithTimeout(raceCtx, m.timeouts.For(p.ID()))
			defer opCancel()

			start := time.Now()
			blob, err := p.RetrieveData(opCtx, key)
			elapsed := time.Since(start)
			m.monitor.RecordOutcome(p.ID(), err, elapsed)
			m.collector.ObserveOperation(p.ID(), "retrieve", elapsed, err)
			outcomes <- outcome{id: p.ID(), blob: blob, err: err}
		}(p)
	}

	notFound := 0
	errs := make(map[interfaces.ProviderID]error)
	for range order {
		o := <-outcomes
		if o.err == nil {
			cancel()
			return m.cipher.Decrypt(o.blob, key)
		}
		errs[o.id] = o.err
		if errors.Is(o.err, interfaces.ErrNotFound) {
			notFound++
		}
	}
	if notFound == len(order) {
		return nil, fmt.Errorf("%w: %q has no replica", interfaces.ErrNotFound, filename)
	}
	return nil, fmt.Errorf("%w: every retrieval attempt for %q failed: %s", interfaces.ErrProviderUnavailable, filename, providerErrorSummary(errs))
}

// Delete removes a file from every provider that holds it, or from every
// configured provider when the file is untracked and replicas may be
// orphaned. A provider reporting not-found counts as deleted, which makes
// deletion idempotent per provider; deleting a name nothing holds returns
// ErrNotFound. On a mixed outcome the index keeps rows for the providers
// that still hold the file.
func (m *Manager) Delete(ctx context.Context, filename string) error {
	key := interfaces.StorageKey{Filename: filename, KeyID: m.activeKey}
	tracked := true
	keyID, _, err := m.index.Lookup(ctx, filename)
	switch {
	case err == nil:
		key.KeyID = keyID
	case errors.Is(err, interfaces.ErrNotFound):
		tracked = false
	default:
		return err
	}

	var targets []interfaces.StorageProvider
	if tracked {
		holders, err := m.index.Holders(ctx, filename)
		if err != nil {
			return err
		}
		for _, id := range holders {
			if p, ok := m.byID[id]; ok {
				targets = append(targets, p)
			}
		}
	}
	if len(targets) == 0 {
		for _, p := range m.providers {
			if p.IsConfigured() {
				targets = append(targets, p)
			}
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: no configured providers", interfaces.ErrProviderUnavailable)
	}

	type attempt struct {
		id       interfaces.ProviderID
		err      error
		notFound bool
	}
	results := make([]attempt, len(targets))

	var g errgroup.Group
	for i, p := range targets {
		g.Go(func() error {
			opCtx, cancel := context.WithTimeout(ctx, m.timeouts.For(p.ID()))
			defer cancel()

			start := time.Now()
			err := p.DeleteData(opCtx, key)
			elapsed := time.Since(start)

			notFound := errors.Is(err, interfaces.ErrNotFound)
			outcomeErr := err
			if notFound {
				// An absent replica is a healthy answer, not a failure.
				outcomeErr = nil
			}
			m.monitor.RecordOutcome(p.ID(), outcomeErr, elapsed)
			m.collector.ObserveOperation(p.ID(), "delete", elapsed, outcomeErr)
			results[i] = attempt{id: p.ID(), err: err, notFound: notFound}
			return nil
		})
	}
	_ = g.Wait()

	var deleted, failed []interfaces.ProviderID
	errs := make(map[interfaces.ProviderID]error)
	allNotFound := true
	for _, r := range results {
		switch {
		case r.err == nil:
			deleted = append(deleted, r.id)
			allNotFound = false
		case r.notFound:
			deleted = append(deleted, r.id)
		default:
			failed = append(failed, r.id)
			errs[r.id] = r.err
			allNotFound = false
		}
	}

	if len(failed) == 0 {
		if !tracked && allNotFound {
			return fmt.Errorf("%w: %q", interfaces.ErrNotFound, filename)
		}
		if err := m.index.ForgetAll(context.Background(), filename); err != nil {
			m.log.Error("failed to clear replica index", slog.String("filename", filename), "err", err)
		}
		m.log.Info("file deleted", slog.String("filename", filename), slog.Int("providers", len(deleted)))
		m.bus.Publish(Event{Type: EventStatisticsChanged, Filename: filename, Detail: "delete"})
		return nil
	}

	for _, id := range deleted {
		if err := m.index.Forget(context.Background(), filename, id); err != nil {
			m.log.Error("failed to untrack deleted replica",
				slog.String("filename", filename),
				slog.String("provider", id.String()),
				"err", err)
		}
	}
	m.bus.Publish(Event{Type: EventStatisticsChanged, Filename: filename, Detail: "delete"})
	return &interfaces.PartialDeleteError{Deleted: deleted, Failed: failed, Errors: errs}
}

// ListFiles merges listings from every healthy provider, de-duplicated by
// name with the newest modification time winning. Partial results are
// tolerated unless every provider fails.
func (m *Manager) ListFiles(ctx context.Context) ([]interfaces.FileRecord, error) {
	var pool []interfaces.StorageProvider
	for _, p := range m.providers {
		if p.IsConfigured() && m.monitor.IsHealthy(p.ID()) {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: no healthy providers to list", interfaces.ErrProviderUnavailable)
	}

	lists := make([][]interfaces.FileRecord, len(pool))
	errs := make([]error, len(pool))

	var g errgroup.Group
	for i, p := range pool {
		g.Go(func() error {
			opCtx, cancel := context.WithTimeout(ctx, m.timeouts.For(p.ID()))
			defer cancel()

			start := time.Now()
			records, err := p.ListFiles(opCtx)
			elapsed := time.Since(start)
			m.monitor.RecordOutcome(p.ID(), err, elapsed)
			m.collector.ObserveOperation(p.ID(), "list", elapsed, err)
			lists[i], errs[i] = records, err
			return nil
		})
	}
	_ = g.Wait()

	merged := make(map[string]interfaces.FileRecord)
	failures := 0
	for i, err := range errs {
		if err != nil {
			failures++
			m.log.Warn("listing failed", slog.String("provider", pool[i].ID().String()), "err", err)
			continue
		}
		for _, r := range lists[i] {
			if have, ok := merged[r.Name]; !ok || r.ModifiedTime.After(have.ModifiedTime) {
				merged[r.Name] = r
			}
		}
	}
	if failures == len(pool) {
		return nil, fmt.Errorf("%w: listing failed on every provider", interfaces.ErrProviderUnavailable)
	}

	out := make([]interfaces.FileRecord, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TrackedFilenames lists every filename in the replica index.
func (m *Manager) TrackedFilenames(ctx context.Context) ([]string, error) {
	return m.index.Filenames(ctx)
}

// Statistics aggregates the fleet from in-memory health state. It never
// blocks and performs no provider I/O.
func (m *Manager) Statistics() interfaces.ProviderStatistics {
	m.mu.RLock()
	primary := m.primary
	level := m.level
	m.mu.RUnlock()

	stats := interfaces.ProviderStatistics{
		TotalProviders: len(m.providers),
		Level:          level,
		Primary:        primary,
	}
	var sum float64
	for _, p := range m.providers {
		score := m.monitor.Score(p.ID())
		sum += score
		if score >= unhealthyScore {
			stats.HealthyProviders++
		}
	}
	if len(m.providers) > 0 {
		stats.AverageHealthScore = sum / float64(len(m.providers))
	}
	return stats
}

// Providers returns static facts plus the live descriptor for every
// registered provider, in registration order.
func (m *Manager) Providers() []ProviderState {
	states := make([]ProviderState, 0, len(m.providers))
	for _, p := range m.providers {
		d, _ := m.monitor.Snapshot(p.ID())
		states = append(states, ProviderState{
			Info:       p.Describe(),
			Configured: p.IsConfigured(),
			Descriptor: d,
		})
	}
	return states
}

// Primary returns the current primary provider.
func (m *Manager) Primary() interfaces.ProviderID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary
}

// Level returns the current redundancy level.
func (m *Manager) Level() interfaces.RedundancyLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// SetPrimary reassigns the primary provider. Failover is operator-driven:
// nothing reassigns the primary automatically when it degrades, ordering
// already routes around it.
func (m *Manager) SetPrimary(id interfaces.ProviderID) error {
	p, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("unknown provider %q", id)
	}
	if !p.IsConfigured() {
		return fmt.Errorf("%w: %s cannot be primary", interfaces.ErrNotConfigured, id)
	}

	m.mu.Lock()
	old := m.primary
	m.primary = id
	m.mu.Unlock()
	if old == id {
		return nil
	}

	m.log.Info("primary provider changed", slog.String("from", old.String()), slog.String("to", id.String()))
	m.bus.Publish(Event{Type: EventPrimaryChanged, Provider: id, Detail: fmt.Sprintf("%s -> %s", old, id)})
	return nil
}

// SetRedundancyLevel changes the replica target for subsequent stores.
// Already stored files are not re-replicated.
func (m *Manager) SetRedundancyLevel(level interfaces.RedundancyLevel) error {
	switch level {
	case interfaces.RedundancyNone, interfaces.RedundancyDual, interfaces.RedundancyFull:
	default:
		return fmt.Errorf("unknown redundancy level %d", level)
	}

	m.mu.Lock()
	old := m.level
	m.level = level
	m.mu.Unlock()
	if old == level {
		return nil
	}

	m.log.Info("redundancy level changed", slog.String("from", old.String()), slog.String("to", level.String()))
	m.bus.Publish(Event{Type: EventRedundancyChanged, Detail: fmt.Sprintf("%s -> %s", old, level)})
	return nil
}

// TestConnection runs the monitor's on-demand round-trip against one
// provider.
func (m *Manager) TestConnection(ctx context.Context, id interfaces.ProviderID) (TestResult, error) {
	return m.monitor.TestConnection(ctx, id)
}

// Subscribe returns a channel of manager events that closes with the
// context.
func (m *Manager) Subscribe(ctx context.Context) <-chan Event {
	return m.bus.Subscribe(ctx)
}

func providerErrorSummary(errs map[interfaces.ProviderID]error) string {
	parts := make([]string, 0, len(errs))
	for id, err := range errs {
		parts = append(parts, fmt.Sprintf("%s: %v", id, err))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
