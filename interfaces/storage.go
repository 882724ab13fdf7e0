package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when a provider's credentials are missing
	// or rejected. Retrying without a configuration change cannot succeed.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrNetworkFailure is returned for transient transport-level failures:
	// DNS resolution, connection resets, timeouts on the wire.
	ErrNetworkFailure = errors.New("network failure")

	// ErrProviderUnavailable is returned when a backend is reachable but
	// rejecting requests: rate limits, exhausted quota, service outages.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNotFound is returned when no replica of the requested object exists
	// at the queried provider.
	ErrNotFound = errors.New("file not found")

	// ErrEncryption is returned for failures inside the encryption boundary.
	// It is never retried: a store aborts before any provider is contacted
	// and a retrieve fails without consulting further replicas.
	ErrEncryption = errors.New("encryption boundary failure")

	// ErrUnsupportedLocation is returned when a provider location URI uses an
	// unknown scheme or is malformed.
	// URIs follow the format: scheme://[auth@]host[:port][/path][?params]
	ErrUnsupportedLocation = errors.New("unsupported provider location URI")
)

// StorageProvider is the uniform capability contract every backend adapter
// implements. All blocking operations take a context; adapters either run an
// operation to completion or mark it incomplete before honoring cancellation,
// so callers can count only settled writes toward redundancy.
type StorageProvider interface {
	// ID returns the stable provider name.
	ID() ProviderID

	// Describe returns static facts about the backend.
	Describe() ProviderInfo

	// IsConfigured reports whether required credentials are present.
	// It performs no I/O.
	IsConfigured() bool

	// Initialize establishes connectivity and verifies authentication.
	Initialize(ctx context.Context) error

	// StoreData persists an encrypted blob under the key. Backends with
	// delayed confirmation return only once the write has settled. Storing
	// an existing key overwrites it.
	StoreData(ctx context.Context, blob EncryptedBlob, key StorageKey) error

	// RetrieveData fetches the blob stored under the key.
	RetrieveData(ctx context.Context, key StorageKey) (EncryptedBlob, error)

	// DeleteData removes the blob. Append-only backends remove the key
	// mapping only; the underlying data is permanent.
	DeleteData(ctx context.Context, key StorageKey) error

	// ListFiles enumerates stored objects, paging through the backend where
	// it supports pagination.
	ListFiles(ctx context.Context) ([]FileRecord, error)

	// GetFileInfo answers from local state and may be stale. It performs
	// no I/O.
	GetFileInfo(key StorageKey) (FileRecord, bool)
}
