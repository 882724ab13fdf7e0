package redundancy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
	"github.com/voxalabs/storage-redundancy-engine/storage"
)

func newTestIndex(t *testing.T) *ReplicaIndex {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	index, err := NewReplicaIndex(db)
	require.NoError(t, err)
	return index
}

func TestReplicaIndexRoundTrip(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Record(ctx, Replica{
		Filename:    "docs/a.txt",
		KeyID:       "primary",
		Provider:    interfaces.ProviderFirebase,
		ContentHash: "aa11",
		Size:        64,
		StoredAt:    time.Now().Add(-time.Hour),
	}))
	require.NoError(t, index.Record(ctx, Replica{
		Filename:    "docs/a.txt",
		KeyID:       "primary",
		Provider:    interfaces.ProviderIPFS,
		ContentHash: "aa11",
		Size:        64,
	}))

	holders, err := index.Holders(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ProviderID{interfaces.ProviderFirebase, interfaces.ProviderIPFS}, holders,
		"oldest replica first")

	keyID, hash, err := index.Lookup(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "primary", keyID)
	assert.Equal(t, "aa11", hash)
}

func TestReplicaIndexLookupUntracked(t *testing.T) {
	index := newTestIndex(t)

	_, _, err := index.Lookup(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	holders, err := index.Holders(context.Background(), "missing.txt")
	require.NoError(t, err)
	assert.Empty(t, holders)
}

func TestReplicaIndexRecordReplaces(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Record(ctx, Replica{
		Filename: "f.bin", KeyID: "old-key", Provider: interfaces.ProviderDropbox, ContentHash: "1111",
	}))
	require.NoError(t, index.Record(ctx, Replica{
		Filename: "f.bin", KeyID: "new-key", Provider: interfaces.ProviderDropbox, ContentHash: "2222", Size: 9,
	}))

	holders, err := index.Holders(ctx, "f.bin")
	require.NoError(t, err)
	assert.Len(t, holders, 1, "re-recording the same provider must not duplicate")

	keyID, hash, err := index.Lookup(ctx, "f.bin")
	require.NoError(t, err)
	assert.Equal(t, "new-key", keyID)
	assert.Equal(t, "2222", hash)
}

func TestReplicaIndexForget(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	for _, provider := range []interfaces.ProviderID{interfaces.ProviderFirebase, interfaces.ProviderArweave} {
		require.NoError(t, index.Record(ctx, Replica{
			Filename: "f.txt", KeyID: "primary", Provider: provider, ContentHash: "abcd",
		}))
	}

	require.NoError(t, index.Forget(ctx, "f.txt", interfaces.ProviderFirebase))
	holders, err := index.Holders(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ProviderID{interfaces.ProviderArweave}, holders)

	// forgetting an absent row is not an error
	require.NoError(t, index.Forget(ctx, "f.txt", interfaces.ProviderFirebase))

	require.NoError(t, index.ForgetAll(ctx, "f.txt"))
	_, _, err = index.Lookup(ctx, "f.txt")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestReplicaIndexFilenames(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	for _, filename := range []string{"b.txt", "a.txt", "c.txt"} {
		for _, provider := range []interfaces.ProviderID{interfaces.ProviderFirebase, interfaces.ProviderIPFS} {
			require.NoError(t, index.Record(ctx, Replica{
				Filename: filename, KeyID: "primary", Provider: provider, ContentHash: "ffff",
			}))
		}
	}

	names, err := index.Filenames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names, "sorted and de-duplicated")
}
