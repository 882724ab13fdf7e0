package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// fakeIPFS is an in-memory ipfsAPI. CIDs derive from content so storing the
// same bytes twice yields the same CID, as on a real node.
type fakeIPFS struct {
	mu     sync.Mutex
	blocks map[string][]byte
	pins   map[string]bool
	down   bool
}

func newFakeIPFS() *fakeIPFS {
	return &fakeIPFS{blocks: make(map[string][]byte), pins: make(map[string]bool)}
}

func (f *fakeIPFS) Add(r io.Reader, _ ...shell.AddOpts) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	cid := fmt.Sprintf("Qm%x", hash[:8])

	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[cid] = data
	f.pins[cid] = true
	return cid, nil
}

func (f *fakeIPFS) Cat(path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blocks[path]
	if !ok {
		return nil, errors.New("no link named " + path)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *fakeIPFS) Unpin(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pins[path] {
		return errors.New("not pinned")
	}
	delete(f.pins, path)
	return nil
}

func (f *fakeIPFS) IsUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down
}

// fakePinningService emulates a remote pinning endpoint with basic auth.
type fakePinningService struct {
	mu       sync.Mutex
	pins     map[string]bool
	failAdds int
	failRms  bool
}

func (s *fakePinningService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "project-id" || pass != "project-secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Path {
	case "/api/v0/version":
		fmt.Fprint(w, `{"Version":"0.24.0"}`)
	case "/api/v0/pin/add":
		if s.failAdds > 0 {
			s.failAdds--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.pins[r.URL.Query().Get("arg")] = true
	case "/api/v0/pin/rm":
		if s.failRms {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		delete(s.pins, r.URL.Query().Get("arg"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newIPFSFixture(t *testing.T) (*IPFSProvider, *fakeIPFS, *fakePinningService, *KeyMap) {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	keys, err := NewKeyMap(db, interfaces.ProviderIPFS)
	require.NoError(t, err)

	node := newFakeIPFS()
	pinSvc := &fakePinningService{pins: make(map[string]bool)}
	srv := httptest.NewServer(pinSvc)
	t.Cleanup(srv.Close)

	pinning := NewPinningClient(srv.URL, "project-id", "project-secret", slog.Default())
	provider := NewIPFSProvider(node, pinning, keys, "127.0.0.1:5001", slog.Default())
	return provider, node, pinSvc, keys
}

func TestIPFSStoreRetrieve(t *testing.T) {
	provider, node, pinSvc, keys := newIPFSFixture(t)
	ctx := context.Background()
	key := interfaces.StorageKey{Filename: "backup.tar", KeyID: "k1"}
	blob := interfaces.EncryptedBlob{Bytes: []byte("sealed-envelope")}

	require.NoError(t, provider.StoreData(ctx, blob, key))

	entry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)
	assert.Equal(t, AddressConfirmed, entry.Status)
	assert.True(t, node.pins[entry.Address], "content pinned locally")
	assert.True(t, pinSvc.pins[entry.Address], "content pinned remotely")

	got, err := provider.RetrieveData(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes, got.Bytes)
}

func TestIPFSOverwriteRepoints(t *testing.T) {
	provider, node, pinSvc, keys := newIPFSFixture(t)
	ctx := context.Background()
	key := interfaces.StorageKey{Filename: "backup.tar"}

	require.NoError(t, provider.StoreData(ctx, interfaces.EncryptedBlob{Bytes: []byte("version-one")}, key))
	oldEntry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)

	require.NoError(t, provider.StoreData(ctx, interfaces.EncryptedBlob{Bytes: []byte("version-two")}, key))
	newEntry, err := keys.Get(ctx, "backup.tar")
	require.NoError(t, err)
	require.NotEqual(t, oldEntry.Address, newEntry.Address)

	assert.False(t, node.pins[oldEntry.Address], "replaced content unpinned locally")
	assert.False(t, pinSvc.pins[oldEntry.Address], "replaced content unpinned remotely")
	assert.True(t, pinSvc.pins[newEntry.Address])

	got, err := provider.RetrieveData(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("version-two"), got.Bytes)
}

func TestIPFSStoreRetriesRemotePin(t *testing.T) {
	provider, _, pinSvc, _ := newIPFSFixture(t)
	pinSvc.failAdds = 1

	key := interfaces.StorageKey{Filename: "backup.tar"}
	require.NoError(t, provider.StoreData(context.Background(), interfaces.EncryptedBlob{Bytes: []byte("x")}, key))

	entry, ok := provider.GetFileInfo(key)
	require.True(t, ok)
	assert.True(t, pinSvc.pins[entry.ID])
}

func TestIPFSNodeDown(t *testing.T) {
	provider, node, _, keys := newIPFSFixture(t)
	ctx := context.Background()
	key := interfaces.StorageKey{Filename: "backup.tar"}

	require.NoError(t, keys.Put(ctx, "backup.tar", "QmSeeded", 1, AddressConfirmed))
	node.down = true

	err := provider.StoreData(ctx, interfaces.EncryptedBlob{Bytes: []byte("x")}, key)
	assert.ErrorIs(t, err, interfaces.ErrProviderUnavailable)

	_, err = provider.RetrieveData(ctx, key)
	assert.ErrorIs(t, err, interfaces.ErrProviderUnavailable)
	assert.NotErrorIs(t, err, interfaces.ErrNotFound)
}

func TestIPFSRetrieveMissing(t *testing.T) {
	provider, _, _, _ := newIPFSFixture(t)

	_, err := provider.RetrieveData(context.Background(), interfaces.StorageKey{Filename: "ghost.bin"})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestIPFSDeleteKeepsMappingOnRemoteFailure(t *testing.T) {
	provider, _, pinSvc, keys := newIPFSFixture(t)
	ctx := context.Background()
	key := interfaces.StorageKey{Filename: "backup.tar"}

	require.NoError(t, provider.StoreData(ctx, interfaces.EncryptedBlob{Bytes: []byte("x")}, key))

	pinSvc.failRms = true
	err := provider.DeleteData(ctx, key)
	require.Error(t, err)

	_, err = keys.Get(ctx, "backup.tar")
	assert.NoError(t, err, "mapping kept so the delete can be retried")

	pinSvc.failRms = false
	require.NoError(t, provider.DeleteData(ctx, key))
	_, err = keys.Get(ctx, "backup.tar")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestIPFSInitialize(t *testing.T) {
	provider, node, _, _ := newIPFSFixture(t)
	require.NoError(t, provider.Initialize(context.Background()))

	node.down = true
	assert.ErrorIs(t, provider.Initialize(context.Background()), interfaces.ErrProviderUnavailable)
}
