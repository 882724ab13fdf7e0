package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

func newTestFactory(t *testing.T) *ProviderFactory {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProviderFactory(slog.Default(), db)
}

func writeTestWallet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, testWalletJSON(t), 0o600))
	return path
}

func TestFactoryCreatesFirebase(t *testing.T) {
	factory := newTestFactory(t)

	provider, err := factory.ProviderFor("firebase://some-token@backups.appspot.com/engine?endpoint=http://emulator:9199")
	require.NoError(t, err)
	assert.Equal(t, interfaces.ProviderFirebase, provider.ID())
	assert.True(t, provider.IsConfigured())

	fb, ok := provider.(*FirebaseProvider)
	require.True(t, ok)
	assert.Equal(t, "backups.appspot.com", fb.bucket)
	assert.Equal(t, "engine", fb.prefix)
	assert.Equal(t, "http://emulator:9199", fb.endpoint)
}

func TestFactoryCreatesDropbox(t *testing.T) {
	factory := newTestFactory(t)

	provider, err := factory.ProviderFor("dropbox://some-token@/backups")
	require.NoError(t, err)
	assert.Equal(t, interfaces.ProviderDropbox, provider.ID())
	assert.True(t, provider.IsConfigured())

	db, ok := provider.(*DropboxProvider)
	require.True(t, ok)
	assert.Equal(t, "/backups", db.root)
}

func TestFactoryCreatesArweave(t *testing.T) {
	factory := newTestFactory(t)
	walletPath := writeTestWallet(t)

	provider, err := factory.ProviderFor(
		"arweave://gateway.test/?wallet=" + walletPath + "&min-confirmations=3&poll=5s&protocol=http")
	require.NoError(t, err)
	assert.Equal(t, interfaces.ProviderArweave, provider.ID())
	assert.True(t, provider.IsConfigured())

	ar, ok := provider.(*ArweaveProvider)
	require.True(t, ok)
	assert.Equal(t, "http://gateway.test", ar.endpoint)
	assert.Equal(t, int64(3), ar.minConfirmations)
}

func TestFactoryCreatesIPFS(t *testing.T) {
	factory := newTestFactory(t)

	provider, err := factory.ProviderFor(
		"ipfs://127.0.0.1:5001/?pinning=https://pin.test&project-id=id&project-secret=secret")
	require.NoError(t, err)
	assert.Equal(t, interfaces.ProviderIPFS, provider.ID())
	assert.True(t, provider.IsConfigured())

	ip, ok := provider.(*IPFSProvider)
	require.True(t, ok)
	assert.NotNil(t, ip.pinning)
	assert.Equal(t, "127.0.0.1:5001", ip.endpoint)
}

func TestFactoryMissingCredentialsBuildsUnconfigured(t *testing.T) {
	factory := newTestFactory(t)

	tests := []struct {
		name string
		uri  string
	}{
		{"firebase without token", "firebase://backups.appspot.com/engine"},
		{"dropbox without token", "dropbox:///backups"},
		{"arweave without wallet", "arweave://gateway.test/"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider, err := factory.ProviderFor(tc.uri)
			require.NoError(t, err)
			assert.False(t, provider.IsConfigured())
		})
	}
}

func TestFactoryRejectsBadURIs(t *testing.T) {
	factory := newTestFactory(t)

	tests := []struct {
		name string
		uri  string
	}{
		{"unsupported scheme", "s3://bucket/prefix"},
		{"firebase without bucket", "firebase://"},
		{"arweave without host", "arweave:///?wallet=/tmp/w.json"},
		{"bad poll duration", "arweave://gateway.test/?poll=soon"},
		{"bad min confirmations", "arweave://gateway.test/?min-confirmations=many"},
		{"bad ipfs timeout", "ipfs://127.0.0.1:5001/?timeout=never"},
		{"missing wallet file", "arweave://gateway.test/?wallet=/nonexistent/wallet.json"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.ProviderFor(tc.uri)
			assert.Error(t, err)
		})
	}
}

func TestFactoryRequiresDatabaseForMappedProviders(t *testing.T) {
	factory := NewProviderFactory(slog.Default(), nil)

	_, err := factory.ProviderFor("ipfs://127.0.0.1:5001/")
	assert.Error(t, err)
	_, err = factory.ProviderFor("arweave://gateway.test/")
	assert.Error(t, err)

	_, err = factory.ProviderFor("firebase://token@bucket/")
	assert.NoError(t, err)
}

func TestProvidersForPreservesOrder(t *testing.T) {
	factory := newTestFactory(t)

	providers, err := factory.ProvidersFor([]string{
		"firebase://token@bucket/engine",
		"dropbox://token@/backups",
		"arweave://gateway.test/",
		"ipfs://127.0.0.1:5001/",
	})
	require.NoError(t, err)
	require.Len(t, providers, 4)
	assert.Equal(t, interfaces.ProviderFirebase, providers[0].ID())
	assert.Equal(t, interfaces.ProviderDropbox, providers[1].ID())
	assert.Equal(t, interfaces.ProviderArweave, providers[2].ID())
	assert.Equal(t, interfaces.ProviderIPFS, providers[3].ID())
}

func TestProvidersForRejectsDuplicates(t *testing.T) {
	factory := newTestFactory(t)

	_, err := factory.ProvidersFor([]string{
		"firebase://token@bucket-one/",
		"firebase://token@bucket-two/",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestProvidersForRejectsInvalidURI(t *testing.T) {
	factory := newTestFactory(t)

	_, err := factory.ProvidersFor([]string{
		"firebase://token@bucket/",
		"s3://unsupported/",
	})
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedLocation)

	_, err = factory.ProvidersFor(nil)
	assert.Error(t, err)
}
