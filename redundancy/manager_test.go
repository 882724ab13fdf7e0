package redundancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxalabs/storage-redundancy-engine/cryptoutils"
	"github.com/voxalabs/storage-redundancy-engine/interfaces"
	"github.com/voxalabs/storage-redundancy-engine/storage"
)

const testMasterKey = "0123456789abcdef0123456789abcdef"

func testCipher(t *testing.T) *cryptoutils.BlobCipher {
	t.Helper()
	keyring, err := cryptoutils.NewStaticKeyring([]byte(testMasterKey))
	require.NoError(t, err)
	return cryptoutils.NewBlobCipher(keyring)
}

type managerFixture struct {
	manager   *Manager
	monitor   *HealthMonitor
	index     *ReplicaIndex
	providers map[interfaces.ProviderID]*storage.InMemoryProvider
}

func newTestManager(t *testing.T, level interfaces.RedundancyLevel, ids ...interfaces.ProviderID) *managerFixture {
	t.Helper()
	if len(ids) == 0 {
		ids = []interfaces.ProviderID{interfaces.ProviderFirebase, interfaces.ProviderDropbox, interfaces.ProviderIPFS}
	}

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	index, err := NewReplicaIndex(db)
	require.NoError(t, err)

	fakes := make(map[interfaces.ProviderID]*storage.InMemoryProvider, len(ids))
	providers := make([]interfaces.StorageProvider, 0, len(ids))
	for _, id := range ids {
		p := storage.NewInMemoryProvider(id)
		fakes[id] = p
		providers = append(providers, p)
	}

	monitor := newTestMonitor(nil)
	mgr, err := NewManager(ManagerConfig{
		Providers:   providers,
		Primary:     ids[0],
		Level:       level,
		ActiveKeyID: "primary",
		Cipher:      testCipher(t),
		Monitor:     monitor,
		Index:       index,
		Log:         slog.Default(),
	})
	require.NoError(t, err)

	return &managerFixture{manager: mgr, monitor: monitor, index: index, providers: fakes}
}

func (fx *managerFixture) totalStored() int {
	total := 0
	for _, p := range fx.providers {
		total += p.StoredCount()
	}
	return total
}

func TestStoreReplicatesToThreshold(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)
	ctx := context.Background()

	require.NoError(t, fx.manager.Store(ctx, []byte("important bytes"), "docs/report.pdf"))

	assert.Equal(t, 2, fx.totalStored())
	holders, err := fx.index.Holders(ctx, "docs/report.pdf")
	require.NoError(t, err)
	assert.Len(t, holders, 2)
	assert.Contains(t, holders, interfaces.ProviderFirebase, "primary is always targeted")

	raw, ok := fx.providers[interfaces.ProviderFirebase].Contents("docs/report.pdf")
	require.True(t, ok)
	assert.NotContains(t, string(raw), "important bytes", "providers must only see ciphertext")
}

func TestStoreKeepsPartialReplicasOnShortfall(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyFull)
	ctx := context.Background()

	boom := errors.New("disk full")
	fx.providers[interfaces.ProviderDropbox].FailStores(boom)
	fx.providers[interfaces.ProviderIPFS].FailStores(boom)

	err := fx.manager.Store(ctx, []byte("payload"), "a.bin")
	var redErr *interfaces.RedundancyError
	require.ErrorAs(t, err, &redErr)
	assert.Equal(t, 3, redErr.Required)
	assert.Equal(t, 1, redErr.Confirmed)
	assert.Len(t, redErr.Errors, 2)

	holders, err := fx.index.Holders(ctx, "a.bin")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ProviderID{interfaces.ProviderFirebase}, holders,
		"the confirmed replica stays stored and tracked")
}

func TestStoreTimeoutCountsAsShortfall(t *testing.T) {
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	index, err := NewReplicaIndex(db)
	require.NoError(t, err)

	slow := storage.NewInMemoryProvider(interfaces.ProviderDropbox)
	slow.SetStoreDelay(time.Second)
	fast := storage.NewInMemoryProvider(interfaces.ProviderFirebase)
	other := storage.NewInMemoryProvider(interfaces.ProviderIPFS)

	mgr, err := NewManager(ManagerConfig{
		Providers:   []interfaces.StorageProvider{fast, slow, other},
		Level:       interfaces.RedundancyFull,
		ActiveKeyID: "primary",
		Cipher:      testCipher(t),
		Monitor:     newTestMonitor(nil),
		Index:       index,
		Timeouts:    Timeouts{Dropbox: 50 * time.Millisecond},
		Log:         slog.Default(),
	})
	require.NoError(t, err)

	err = mgr.Store(context.Background(), []byte("payload"), "a.bin")
	var redErr *interfaces.RedundancyError
	require.ErrorAs(t, err, &redErr)
	assert.Equal(t, 3, redErr.Required)
	assert.Equal(t, 2, redErr.Confirmed)
	assert.ErrorIs(t, redErr.Errors[interfaces.ProviderDropbox], context.DeadlineExceeded)

	holders, err := index.Holders(context.Background(), "a.bin")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]interfaces.ProviderID{interfaces.ProviderFirebase, interfaces.ProviderIPFS}, holders,
		"replicas that landed before the deadline stay tracked")
}

type sealedKeyring struct{}

func (sealedKeyring) DataKey(string) ([]byte, error) {
	return nil, errors.New("keyring sealed")
}

func TestStoreEncryptionFailureContactsNoProvider(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)
	fx.manager.cipher = cryptoutils.NewBlobCipher(sealedKeyring{})

	err := fx.manager.Store(context.Background(), []byte("data"), "f.txt")
	require.ErrorIs(t, err, interfaces.ErrEncryption)
	assert.Equal(t, 0, fx.totalStored())
}

func TestStoreRejectsInvalidFilename(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyNone)

	assert.Error(t, fx.manager.Store(context.Background(), []byte("x"), ""))
	assert.Error(t, fx.manager.Store(context.Background(), []byte("x"), "/absolute"))
	assert.Error(t, fx.manager.Store(context.Background(), []byte("x"), "../escape"))
	assert.Equal(t, 0, fx.totalStored())
}

func TestStoreFullLevelCountsConfiguredProviders(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyFull)
	fx.providers[interfaces.ProviderIPFS].SetUnconfigured()

	require.NoError(t, fx.manager.Store(context.Background(), []byte("x"), "f.txt"))

	assert.Equal(t, 0, fx.providers[interfaces.ProviderIPFS].StoredCount())
	holders, err := fx.index.Holders(context.Background(), "f.txt")
	require.NoError(t, err)
	assert.Len(t, holders, 2, "full redundancy spans the configured providers")
}

func TestStoreFallsBackToUnhealthyProviders(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)

	fault := errors.New("repeated failure")
	for i := 0; i < 6; i++ {
		fx.monitor.RecordOutcome(interfaces.ProviderDropbox, fault, 0)
		fx.monitor.RecordOutcome(interfaces.ProviderIPFS, fault, 0)
	}
	require.False(t, fx.monitor.IsHealthy(interfaces.ProviderDropbox))
	require.False(t, fx.monitor.IsHealthy(interfaces.ProviderIPFS))

	require.NoError(t, fx.manager.Store(context.Background(), []byte("x"), "f.txt"))

	holders, err := fx.index.Holders(context.Background(), "f.txt")
	require.NoError(t, err)
	assert.Len(t, holders, 2, "unhealthy providers are attempted rather than under-replicating")
}

func TestRetrieveFallsBackPastFailingPrimary(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyFull)
	ctx := context.Background()
	require.NoError(t, fx.manager.Store(ctx, []byte("hello world"), "f.txt"))

	fx.providers[interfaces.ProviderFirebase].FailRetrieves(errors.New("outage"))

	data, err := fx.manager.Retrieve(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)
}

func TestRetrieveMissingFile(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)

	_, err := fx.manager.Retrieve(context.Background(), "nope.txt")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRetrieveDistinguishesUnavailableFromMissing(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyFull)
	ctx := context.Background()
	require.NoError(t, fx.manager.Store(ctx, []byte("x"), "f.txt"))

	outage := fmt.Errorf("%w: maintenance window", interfaces.ErrProviderUnavailable)
	for _, p := range fx.providers {
		p.FailRetrieves(outage)
	}

	_, err := fx.manager.Retrieve(ctx, "f.txt")
	assert.ErrorIs(t, err, interfaces.ErrProviderUnavailable)
	assert.NotErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRetrieveDecryptFailureIsTerminal(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyFull)
	ctx := context.Background()
	require.NoError(t, fx.manager.Store(ctx, []byte("good data"), "f.txt"))

	// corrupt the primary's replica; intact replicas remain elsewhere
	junk := interfaces.EncryptedBlob{Bytes: []byte("junk")}
	key := interfaces.StorageKey{Filename: "f.txt", KeyID: "primary"}
	require.NoError(t, fx.providers[interfaces.ProviderFirebase].StoreData(ctx, junk, key))

	_, err := fx.manager.Retrieve(ctx, "f.txt")
	assert.ErrorIs(t, err, interfaces.ErrEncryption,
		"a replica that will not authenticate must not trigger fallback")
}

func TestRetrieveRacedReturnsFirstReplica(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyFull)
	ctx := context.Background()
	require.NoError(t, fx.manager.Store(ctx, []byte("raced"), "f.txt"))

	fx.providers[interfaces.ProviderFirebase].FailRetrieves(errors.New("outage"))

	data, err := fx.manager.RetrieveRaced(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("raced"), data)
}

func TestRetrieveRacedMissingFile(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)

	_, err := fx.manager.RetrieveRaced(context.Background(), "nope.txt")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestDeleteIsIdempotentPerProvider(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)
	ctx := context.Background()
	require.NoError(t, fx.manager.Store(ctx, []byte("x"), "f.txt"))

	require.NoError(t, fx.manager.Delete(ctx, "f.txt"))
	assert.Equal(t, 0, fx.totalStored())
	names, err := fx.manager.TrackedFilenames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	err = fx.manager.Delete(ctx, "f.txt")
	assert.ErrorIs(t, err, interfaces.ErrNotFound, "deleting a name nothing holds")
}

func TestDeletePartialFailureKeepsFailedTracked(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyFull)
	ctx := context.Background()
	require.NoError(t, fx.manager.Store(ctx, []byte("x"), "f.txt"))

	fx.providers[interfaces.ProviderIPFS].FailDeletes(errors.New("api down"))

	err := fx.manager.Delete(ctx, "f.txt")
	var partial *interfaces.PartialDeleteError
	require.ErrorAs(t, err, &partial)
	assert.Len(t, partial.Deleted, 2)
	assert.Equal(t, []interfaces.ProviderID{interfaces.ProviderIPFS}, partial.Failed)

	holders, err := fx.index.Holders(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ProviderID{interfaces.ProviderIPFS}, holders,
		"the failed provider stays tracked for a retry")

	fx.providers[interfaces.ProviderIPFS].FailDeletes(nil)
	require.NoError(t, fx.manager.Delete(ctx, "f.txt"))
	names, err := fx.manager.TrackedFilenames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeleteSweepsUntrackedReplicas(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)
	ctx := context.Background()

	// a replica without an index row, as after a lost database
	key := interfaces.StorageKey{Filename: "orphan.txt", KeyID: "primary"}
	blob := interfaces.EncryptedBlob{Bytes: []byte("x")}
	require.NoError(t, fx.providers[interfaces.ProviderIPFS].StoreData(ctx, blob, key))

	require.NoError(t, fx.manager.Delete(ctx, "orphan.txt"))
	assert.Equal(t, 0, fx.providers[interfaces.ProviderIPFS].StoredCount())
}

func TestListFilesMergesAcrossProviders(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyNone)
	ctx := context.Background()

	require.NoError(t, fx.manager.Store(ctx, []byte("one"), "a.txt"))
	require.NoError(t, fx.manager.Store(ctx, []byte("two"), "b.txt"))

	// the same name on two providers: the newer replica wins the merge
	stale := interfaces.EncryptedBlob{Bytes: []byte("stale")}
	fresh := interfaces.EncryptedBlob{Bytes: []byte("fresh-and-longer")}
	key := interfaces.StorageKey{Filename: "c.txt", KeyID: "primary"}
	require.NoError(t, fx.providers[interfaces.ProviderDropbox].StoreData(ctx, stale, key))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, fx.providers[interfaces.ProviderIPFS].StoreData(ctx, fresh, key))

	records, err := fx.manager.ListFiles(ctx)
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	var merged interfaces.FileRecord
	for _, r := range records {
		names = append(names, r.Name)
		if r.Name == "c.txt" {
			merged = r
		}
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names)
	assert.Equal(t, int64(len("fresh-and-longer")), merged.Size)

	// a single failing provider does not fail the listing
	fx.providers[interfaces.ProviderDropbox].FailLists(errors.New("rate limited"))
	records, err = fx.manager.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestListFilesFailsWhenEveryProviderFails(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)

	boom := errors.New("down")
	for _, p := range fx.providers {
		p.FailLists(boom)
	}

	_, err := fx.manager.ListFiles(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrProviderUnavailable)
}

func TestInitializeFailsOnlyWhenPrimaryFails(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)
	fx.providers[interfaces.ProviderIPFS].FailInitialize(errors.New("daemon offline"))

	require.NoError(t, fx.manager.Initialize(context.Background()))
	snap, ok := fx.monitor.Snapshot(interfaces.ProviderIPFS)
	require.True(t, ok)
	assert.Contains(t, snap.LastError, "daemon offline")

	fx.providers[interfaces.ProviderFirebase].FailInitialize(errors.New("bad credentials"))
	err := fx.manager.Initialize(context.Background())
	var initErr *interfaces.InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, interfaces.ProviderFirebase, initErr.Primary)
}

func TestSetPrimaryValidatesAndAnnounces(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := fx.manager.Subscribe(ctx)

	assert.Error(t, fx.manager.SetPrimary(interfaces.ProviderArweave), "not part of this fleet")

	fx.providers[interfaces.ProviderDropbox].SetUnconfigured()
	assert.ErrorIs(t, fx.manager.SetPrimary(interfaces.ProviderDropbox), interfaces.ErrNotConfigured)

	require.NoError(t, fx.manager.SetPrimary(interfaces.ProviderIPFS))
	assert.Equal(t, interfaces.ProviderIPFS, fx.manager.Primary())

	select {
	case evt := <-events:
		assert.Equal(t, EventPrimaryChanged, evt.Type)
		assert.Equal(t, interfaces.ProviderIPFS, evt.Provider)
	case <-time.After(time.Second):
		t.Fatal("no event after primary change")
	}
}

func TestSetRedundancyLevelAffectsNextStore(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyNone)
	ctx := context.Background()

	require.NoError(t, fx.manager.Store(ctx, []byte("x"), "one.txt"))
	holders, err := fx.index.Holders(ctx, "one.txt")
	require.NoError(t, err)
	assert.Len(t, holders, 1)

	require.NoError(t, fx.manager.SetRedundancyLevel(interfaces.RedundancyFull))
	require.NoError(t, fx.manager.Store(ctx, []byte("x"), "two.txt"))
	holders, err = fx.index.Holders(ctx, "two.txt")
	require.NoError(t, err)
	assert.Len(t, holders, 3)

	assert.Error(t, fx.manager.SetRedundancyLevel(interfaces.RedundancyLevel(42)))
}

func TestStatisticsAggregatesWithoutIO(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)

	stats := fx.manager.Statistics()
	assert.Equal(t, 3, stats.TotalProviders)
	assert.Equal(t, 3, stats.HealthyProviders)
	assert.Equal(t, interfaces.RedundancyDual, stats.Level)
	assert.Equal(t, interfaces.ProviderFirebase, stats.Primary)
	assert.InDelta(t, 1.0, stats.AverageHealthScore, 0.0001)

	fault := errors.New("down")
	for i := 0; i < 6; i++ {
		fx.monitor.RecordOutcome(interfaces.ProviderIPFS, fault, 0)
	}

	stats = fx.manager.Statistics()
	assert.Equal(t, 2, stats.HealthyProviders)
	assert.Less(t, stats.AverageHealthScore, 1.0)
}

func TestStatisticsTouchesNoProvider(t *testing.T) {
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	index, err := NewReplicaIndex(db)
	require.NoError(t, err)

	// No expectations are set, so any provider call beyond ID fails the test.
	first := &storage.MockProvider{MockID: interfaces.ProviderFirebase}
	second := &storage.MockProvider{MockID: interfaces.ProviderDropbox}

	mgr, err := NewManager(ManagerConfig{
		Providers:   []interfaces.StorageProvider{first, second},
		Level:       interfaces.RedundancyDual,
		ActiveKeyID: "primary",
		Cipher:      testCipher(t),
		Monitor:     newTestMonitor(nil),
		Index:       index,
		Log:         slog.Default(),
	})
	require.NoError(t, err)

	stats := mgr.Statistics()
	assert.Equal(t, 2, stats.TotalProviders)
	assert.Equal(t, 2, stats.HealthyProviders)

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestProvidersReportsStateInOrder(t *testing.T) {
	fx := newTestManager(t, interfaces.RedundancyDual)
	fx.providers[interfaces.ProviderDropbox].SetUnconfigured()

	states := fx.manager.Providers()
	require.Len(t, states, 3)
	assert.Equal(t, interfaces.ProviderFirebase, states[0].Info.ID)
	assert.True(t, states[0].Configured)
	assert.False(t, states[1].Configured)
	assert.Equal(t, interfaces.StatusDisconnected, states[0].Descriptor.Status)
}

func TestEncryptedAccessSupportsRestore(t *testing.T) {
	source := newTestManager(t, interfaces.RedundancyDual)
	ctx := context.Background()
	require.NoError(t, source.manager.Store(ctx, []byte("backup me"), "f.txt"))

	blob, key, err := source.manager.RetrieveEncrypted(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, "primary", key.KeyID)

	restored := newTestManager(t, interfaces.RedundancyDual)
	require.NoError(t, restored.manager.StoreEncrypted(ctx, blob, key))

	data, err := restored.manager.Retrieve(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("backup me"), data)

	garbage := interfaces.EncryptedBlob{Bytes: []byte("not an envelope")}
	assert.ErrorIs(t, restored.manager.StoreEncrypted(ctx, garbage, key), interfaces.ErrEncryption)
}

func TestNewManagerValidatesWiring(t *testing.T) {
	cipher := testCipher(t)
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	index, err := NewReplicaIndex(db)
	require.NoError(t, err)

	provider := storage.NewInMemoryProvider(interfaces.ProviderFirebase)

	_, err = NewManager(ManagerConfig{Cipher: cipher, Index: index, ActiveKeyID: "primary"})
	assert.Error(t, err, "providers required")

	_, err = NewManager(ManagerConfig{
		Providers:   []interfaces.StorageProvider{provider},
		Index:       index,
		ActiveKeyID: "primary",
	})
	assert.Error(t, err, "cipher required")

	_, err = NewManager(ManagerConfig{
		Providers:   []interfaces.StorageProvider{provider},
		Cipher:      cipher,
		Index:       index,
		ActiveKeyID: "primary",
		Primary:     interfaces.ProviderArweave,
	})
	assert.Error(t, err, "primary must be registered")

	_, err = NewManager(ManagerConfig{
		Providers: []interfaces.StorageProvider{
			provider,
			storage.NewInMemoryProvider(interfaces.ProviderFirebase),
		},
		Cipher:      cipher,
		Index:       index,
		ActiveKeyID: "primary",
	})
	assert.Error(t, err, "duplicate provider ids rejected")

	mgr, err := NewManager(ManagerConfig{
		Providers:   []interfaces.StorageProvider{provider},
		Cipher:      cipher,
		Index:       index,
		ActiveKeyID: "primary",
	})
	require.NoError(t, err)
	assert.Equal(t, interfaces.ProviderFirebase, mgr.Primary(), "primary defaults to the first provider")
}
