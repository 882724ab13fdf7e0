package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

func newTestDB(t *testing.T) *KeyMap {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	keys, err := NewKeyMap(db, interfaces.ProviderIPFS)
	require.NoError(t, err)
	return keys
}

func TestKeyMapPutGet(t *testing.T) {
	keys := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, keys.Put(ctx, "backup.tar", "QmAbc123", 2048, AddressConfirmed))

	entry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)
	assert.Equal(t, "backup.tar", entry.Filename)
	assert.Equal(t, "QmAbc123", entry.Address)
	assert.Equal(t, int64(2048), entry.Size)
	assert.Equal(t, AddressConfirmed, entry.Status)
	assert.WithinDuration(t, time.Now(), entry.CreatedAt, time.Minute)
}

func TestKeyMapGetMissing(t *testing.T) {
	keys := newTestDB(t)

	_, err := keys.Get(context.Background(), "nope.bin")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestKeyMapPutReplaces(t *testing.T) {
	keys := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, keys.Put(ctx, "backup.tar", "QmOld", 100, AddressConfirmed))
	require.NoError(t, keys.Put(ctx, "backup.tar", "QmNew", 200, AddressPending))

	entry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)
	assert.Equal(t, "QmNew", entry.Address)
	assert.Equal(t, int64(200), entry.Size)
	assert.Equal(t, AddressPending, entry.Status)
}

func TestKeyMapSetStatus(t *testing.T) {
	keys := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, keys.Put(ctx, "backup.tar", "tx-1", 64, AddressPending))
	require.NoError(t, keys.SetStatus(ctx, "backup.tar", AddressConfirmed))

	entry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)
	assert.Equal(t, AddressConfirmed, entry.Status)

	err = keys.SetStatus(ctx, "other.tar", AddressConfirmed)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestKeyMapDelete(t *testing.T) {
	keys := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, keys.Put(ctx, "backup.tar", "QmAbc", 64, AddressConfirmed))
	require.NoError(t, keys.Delete(ctx, "backup.tar"))

	_, err := keys.Get(ctx, "backup.tar")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	err = keys.Delete(ctx, "backup.tar")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestKeyMapListOnlyConfirmed(t *testing.T) {
	keys := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, keys.Put(ctx, "a.bin", "addr-a", 1, AddressConfirmed))
	require.NoError(t, keys.Put(ctx, "b.bin", "addr-b", 2, AddressPending))
	require.NoError(t, keys.Put(ctx, "c.bin", "addr-c", 3, AddressConfirmed))

	entries, err := keys.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.bin", entries[0].Filename)
	assert.Equal(t, "c.bin", entries[1].Filename)
}

func TestKeyMapScopedByProvider(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ipfsKeys, err := NewKeyMap(db, interfaces.ProviderIPFS)
	require.NoError(t, err)
	ledgerKeys, err := NewKeyMap(db, interfaces.ProviderArweave)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ipfsKeys.Put(ctx, "shared.bin", "QmCid", 10, AddressConfirmed))
	require.NoError(t, ledgerKeys.Put(ctx, "shared.bin", "tx-id", 10, AddressConfirmed))

	ipfsEntry, err := ipfsKeys.Get(ctx, "shared.bin")
	require.NoError(t, err)
	assert.Equal(t, "QmCid", ipfsEntry.Address)

	ledgerEntry, err := ledgerKeys.Get(ctx, "shared.bin")
	require.NoError(t, err)
	assert.Equal(t, "tx-id", ledgerEntry.Address)

	require.NoError(t, ipfsKeys.Delete(ctx, "shared.bin"))
	_, err = ledgerKeys.Get(ctx, "shared.bin")
	assert.NoError(t, err)
}
