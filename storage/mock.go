package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// MockProvider mocks the StorageProvider interface
type MockProvider struct {
	mock.Mock

	// MockID is returned by ID and Describe without an expectation, since
	// identity is consulted constantly during candidate selection.
	MockID interfaces.ProviderID
}

// ID returns the configured provider identity.
func (m *MockProvider) ID() interfaces.ProviderID {
	return m.MockID
}

// Describe returns a descriptor derived from the configured identity.
func (m *MockProvider) Describe() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{
		ID:          m.MockID,
		DisplayName: string(m.MockID),
		Mutable:     true,
	}
}

// IsConfigured mocks the IsConfigured method
func (m *MockProvider) IsConfigured() bool {
	args := m.Called()
	return args.Bool(0)
}

// Initialize mocks the Initialize method
func (m *MockProvider) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// StoreData mocks the StoreData method
func (m *MockProvider) StoreData(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error {
	args := m.Called(ctx, blob, key)
	return args.Error(0)
}

// RetrieveData mocks the RetrieveData method
func (m *MockProvider) RetrieveData(ctx context.Context, key interfaces.StorageKey) (interfaces.EncryptedBlob, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(interfaces.EncryptedBlob), args.Error(1)
}

// DeleteData mocks the DeleteData method
func (m *MockProvider) DeleteData(ctx context.Context, key interfaces.StorageKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// ListFiles mocks the ListFiles method
func (m *MockProvider) ListFiles(ctx context.Context) ([]interfaces.FileRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]interfaces.FileRecord), args.Error(1)
}

// GetFileInfo mocks the GetFileInfo method
func (m *MockProvider) GetFileInfo(key interfaces.StorageKey) (interfaces.FileRecord, bool) {
	args := m.Called(key)
	return args.Get(0).(interfaces.FileRecord), args.Bool(1)
}

type storedObject struct {
	data     []byte
	modified time.Time
}

// InMemoryProvider provides a simple in-memory implementation of the
// StorageProvider interface for testing without any network backend. It
// stores blobs in a map and lets tests inject failures per operation.
type InMemoryProvider struct {
	ProviderID interfaces.ProviderID

	mu           sync.RWMutex
	objects      map[string]storedObject
	unconfigured bool
	initErr      error
	storeErr     error
	retrieveErr  error
	deleteErr    error
	listErr      error
	storeDelay   time.Duration
}

// NewInMemoryProvider creates an empty in-memory provider that reports
// itself configured and healthy.
func NewInMemoryProvider(id interfaces.ProviderID) *InMemoryProvider {
	return &InMemoryProvider{
		ProviderID: id,
		objects:    make(map[string]storedObject),
	}
}

// SetUnconfigured makes the provider report missing configuration.
func (p *InMemoryProvider) SetUnconfigured() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unconfigured = true
}

// FailInitialize makes Initialize return err. Nil restores success.
func (p *InMemoryProvider) FailInitialize(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initErr = err
}

// FailStores makes StoreData return err. Nil restores success.
func (p *InMemoryProvider) FailStores(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storeErr = err
}

// FailRetrieves makes RetrieveData return err. Nil restores success.
func (p *InMemoryProvider) FailRetrieves(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrieveErr = err
}

// FailDeletes makes DeleteData return err. Nil restores success.
func (p *InMemoryProvider) FailDeletes(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteErr = err
}

// FailLists makes ListFiles return err. Nil restores success.
func (p *InMemoryProvider) FailLists(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = err
}

// SetStoreDelay makes StoreData sleep before completing, for timeout and
// race tests.
func (p *InMemoryProvider) SetStoreDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storeDelay = d
}

// Contents returns the stored bytes for a filename.
func (p *InMemoryProvider) Contents(filename string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	obj, ok := p.objects[filename]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, true
}

// StoredCount returns how many objects the provider holds.
func (p *InMemoryProvider) StoredCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.objects)
}

// ID implements interfaces.StorageProvider.
func (p *InMemoryProvider) ID() interfaces.ProviderID {
	return p.ProviderID
}

// Describe implements interfaces.StorageProvider.
func (p *InMemoryProvider) Describe() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{
		ID:          p.ProviderID,
		DisplayName: string(p.ProviderID),
		Endpoint:    "memory://" + string(p.ProviderID),
		Mutable:     true,
	}
}

// IsConfigured implements interfaces.StorageProvider.
func (p *InMemoryProvider) IsConfigured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.unconfigured
}

// Initialize implements interfaces.StorageProvider.
func (p *InMemoryProvider) Initialize(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.unconfigured {
		return interfaces.ErrNotConfigured
	}
	return p.initErr
}

// StoreData implements interfaces.StorageProvider.
func (p *InMemoryProvider) StoreData(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error {
	p.mu.RLock()
	delay, failure := p.storeDelay, p.storeErr
	p.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failure != nil {
		return failure
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := make([]byte, len(blob.Bytes))
	copy(data, blob.Bytes)

	p.mu.Lock()
	p.objects[key.Filename] = storedObject{data: data, modified: time.Now().UTC()}
	p.mu.Unlock()
	return nil
}

// RetrieveData implements interfaces.StorageProvider.
func (p *InMemoryProvider) RetrieveData(ctx context.Context, key interfaces.StorageKey) (interfaces.EncryptedBlob, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.retrieveErr != nil {
		return interfaces.EncryptedBlob{}, p.retrieveErr
	}
	obj, ok := p.objects[key.Filename]
	if !ok {
		return interfaces.EncryptedBlob{}, interfaces.ErrNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return interfaces.EncryptedBlob{Bytes: out}, nil
}

// DeleteData implements interfaces.StorageProvider.
func (p *InMemoryProvider) DeleteData(ctx context.Context, key interfaces.StorageKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	if _, ok := p.objects[key.Filename]; !ok {
		return interfaces.ErrNotFound
	}
	delete(p.objects, key.Filename)
	return nil
}

// ListFiles implements interfaces.StorageProvider.
func (p *InMemoryProvider) ListFiles(ctx context.Context) ([]interfaces.FileRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	records := make([]interfaces.FileRecord, 0, len(p.objects))
	for name, obj := range p.objects {
		records = append(records, interfaces.FileRecord{
			ID:           string(p.ProviderID) + "/" + name,
			Name:         name,
			Size:         int64(len(obj.data)),
			ModifiedTime: obj.modified,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// GetFileInfo implements interfaces.StorageProvider.
func (p *InMemoryProvider) GetFileInfo(key interfaces.StorageKey) (interfaces.FileRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	obj, ok := p.objects[key.Filename]
	if !ok {
		return interfaces.FileRecord{}, false
	}
	return interfaces.FileRecord{
		ID:           string(p.ProviderID) + "/" + key.Filename,
		Name:         key.Filename,
		Size:         int64(len(obj.data)),
		ModifiedTime: obj.modified,
	}, true
}
