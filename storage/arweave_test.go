package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// fakeGateway scripts gateway behavior: a transaction confirms after
// confirmAfter status checks.
type fakeGateway struct {
	mu           sync.Mutex
	txData       map[string][]byte
	statusCalls  map[string]int
	submitted    []string
	price        int64
	balance      int64
	confirmAfter int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		txData:      make(map[string][]byte),
		statusCalls: make(map[string]int),
		price:       100,
		balance:     1_000_000,
	}
}

func (g *fakeGateway) SubmitTransaction(_ context.Context, tx *LedgerTransaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, err := base64.RawURLEncoding.DecodeString(tx.Data)
	if err != nil {
		return err
	}
	g.txData[tx.ID] = data
	g.submitted = append(g.submitted, tx.ID)
	return nil
}

func (g *fakeGateway) TransactionStatus(_ context.Context, id string) (LedgerStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.txData[id]; !ok {
		return LedgerStatus{}, fmt.Errorf("%w: unknown transaction", interfaces.ErrNotFound)
	}
	g.statusCalls[id]++
	if g.statusCalls[id] <= g.confirmAfter {
		return LedgerStatus{Pending: true}, nil
	}
	return LedgerStatus{BlockHeight: 1000, Confirmations: 10}, nil
}

func (g *fakeGateway) TransactionData(_ context.Context, id string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.txData[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction", interfaces.ErrNotFound)
	}
	return data, nil
}

func (g *fakeGateway) Price(_ context.Context, _ int) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.price, nil
}

func (g *fakeGateway) Balance(_ context.Context, _ string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *fakeGateway) Anchor(_ context.Context) (string, error) {
	return base64.RawURLEncoding.EncodeToString([]byte("anchor")), nil
}

func newArweaveFixture(t *testing.T) (*ArweaveProvider, *fakeGateway, *KeyMap) {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	keys, err := NewKeyMap(db, interfaces.ProviderArweave)
	require.NoError(t, err)

	gateway := newFakeGateway()
	provider := NewArweaveProvider(testWallet(t), gateway, keys, 2, time.Millisecond, "https://gateway.test", slog.Default())
	return provider, gateway, keys
}

func TestArweaveStoreConfirms(t *testing.T) {
	provider, gateway, keys := newArweaveFixture(t)
	gateway.confirmAfter = 2
	ctx := context.Background()
	key := interfaces.StorageKey{Filename: "backup.tar", KeyID: "k1"}
	blob := interfaces.EncryptedBlob{Bytes: []byte("sealed-envelope")}

	require.NoError(t, provider.StoreData(ctx, blob, key))

	require.Len(t, gateway.submitted, 1)
	txID := gateway.submitted[0]
	assert.Equal(t, blob.Bytes, gateway.txData[txID])

	entry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)
	assert.Equal(t, txID, entry.Address)
	assert.Equal(t, AddressConfirmed, entry.Status)

	got, err := provider.RetrieveData(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes, got.Bytes)
}

func TestArweaveStoreInsufficientBalance(t *testing.T) {
	provider, gateway, _ := newArweaveFixture(t)
	gateway.balance = 10
	gateway.price = 100

	err := provider.StoreData(context.Background(), interfaces.EncryptedBlob{Bytes: []byte("x")},
		interfaces.StorageKey{Filename: "backup.tar"})
	assert.ErrorIs(t, err, interfaces.ErrProviderUnavailable)
	assert.Empty(t, gateway.submitted)
}

func TestArweaveStoreTimeoutLeavesPending(t *testing.T) {
	provider, gateway, keys := newArweaveFixture(t)
	gateway.confirmAfter = 1 << 30

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := provider.StoreData(ctx, interfaces.EncryptedBlob{Bytes: []byte("x")},
		interfaces.StorageKey{Filename: "backup.tar"})
	require.Error(t, err)

	entry, err := keys.Get(context.Background(), "backup.tar")
	require.NoError(t, err)
	assert.Equal(t, AddressPending, entry.Status)
}

func TestArweaveRetrievePendingPromotes(t *testing.T) {
	provider, gateway, keys := newArweaveFixture(t)
	ctx := context.Background()

	gateway.txData["tx-live"] = []byte("ledger-data")
	require.NoError(t, keys.Put(ctx, "backup.tar", "tx-live", 11, AddressPending))

	got, err := provider.RetrieveData(ctx, interfaces.StorageKey{Filename: "backup.tar"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ledger-data"), got.Bytes)

	entry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)
	assert.Equal(t, AddressConfirmed, entry.Status)
}

func TestArweaveRetrieveStillPending(t *testing.T) {
	provider, gateway, keys := newArweaveFixture(t)
	gateway.confirmAfter = 1 << 30
	ctx := context.Background()

	gateway.txData["tx-early"] = []byte("ledger-data")
	require.NoError(t, keys.Put(ctx, "backup.tar", "tx-early", 11, AddressPending))

	_, err := provider.RetrieveData(ctx, interfaces.StorageKey{Filename: "backup.tar"})
	assert.ErrorIs(t, err, interfaces.ErrProviderUnavailable)
	assert.NotErrorIs(t, err, interfaces.ErrNotFound)

	entry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)
	assert.Equal(t, AddressPending, entry.Status)
}

func TestArweaveDeleteIsLogical(t *testing.T) {
	provider, gateway, keys := newArweaveFixture(t)
	ctx := context.Background()
	key := interfaces.StorageKey{Filename: "backup.tar"}

	require.NoError(t, provider.StoreData(ctx, interfaces.EncryptedBlob{Bytes: []byte("x")}, key))
	txID := gateway.submitted[0]

	require.NoError(t, provider.DeleteData(ctx, key))

	_, err := keys.Get(ctx, "backup.tar")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.Contains(t, gateway.txData, txID, "ledger data is permanent")

	_, err = provider.RetrieveData(ctx, key)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestArweaveListOnlyConfirmed(t *testing.T) {
	provider, _, keys := newArweaveFixture(t)
	ctx := context.Background()

	require.NoError(t, keys.Put(ctx, "done.bin", "tx-1", 1, AddressConfirmed))
	require.NoError(t, keys.Put(ctx, "waiting.bin", "tx-2", 2, AddressPending))

	records, err := provider.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "done.bin", records[0].Name)
	assert.Equal(t, "tx-1", records[0].ID)
}

func TestArweaveUnconfigured(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	keys, err := NewKeyMap(db, interfaces.ProviderArweave)
	require.NoError(t, err)

	provider := NewArweaveProvider(nil, nil, keys, 0, 0, "https://gateway.test", slog.Default())
	assert.False(t, provider.IsConfigured())
	assert.ErrorIs(t, provider.Initialize(context.Background()), interfaces.ErrNotConfigured)
}
