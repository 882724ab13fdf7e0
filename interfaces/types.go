package interfaces

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProviderID is the stable name of a storage backend. IDs are unique within a
// redundancy manager instance and appear in logs, metrics and the status API.
type ProviderID string

const (
	// ProviderFirebase is the mutable cloud object store, primary by default.
	ProviderFirebase ProviderID = "firebase"

	// ProviderDropbox is the quota-limited file synchronization service.
	ProviderDropbox ProviderID = "dropbox"

	// ProviderArweave is the append-only permanent ledger.
	ProviderArweave ProviderID = "arweave"

	// ProviderIPFS is the content-addressed distributed store.
	ProviderIPFS ProviderID = "ipfs"
)

// KnownProviders lists every provider the engine can build, in canonical order.
var KnownProviders = []ProviderID{ProviderFirebase, ProviderDropbox, ProviderArweave, ProviderIPFS}

// ParseProviderID validates a provider name from config, flags or the API.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownProviders {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// String returns the provider name.
func (id ProviderID) String() string {
	return string(id)
}

// ConnectionStatus describes the last known relationship with a backend.
type ConnectionStatus int

const (
	// StatusDisconnected means the provider has not been initialized.
	StatusDisconnected ConnectionStatus = iota

	// StatusConnecting means initialization is in flight.
	StatusConnecting

	// StatusConnected means the most recent operation or probe succeeded.
	StatusConnected

	// StatusError means a run of recent operations failed. The descriptor
	// carries the reason in LastError.
	StatusError
)

// String returns the status name.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StorageKey is the logical handle for a stored object: the filename callers
// address it by, plus the identifier of the encryption key its ciphertext is
// sealed with. The key ID travels with the filename so ciphertext fetched
// from any replica can be opened without consulting the provider it came from.
type StorageKey struct {
	Filename string
	KeyID    string
}

// ValidateFilename rejects names that cannot be mapped onto every backend.
func ValidateFilename(name string) error {
	if name == "" {
		return errors.New("empty filename")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid filename %q", name)
	}
	return nil
}

// Validate rejects keys that cannot be mapped onto every backend.
func (k StorageKey) Validate() error {
	if err := ValidateFilename(k.Filename); err != nil {
		return err
	}
	if k.KeyID == "" {
		return errors.New("empty encryption key id")
	}
	return nil
}

// String returns the filename.
func (k StorageKey) String() string {
	return k.Filename
}

// EncryptedBlob is the unit providers store and return: the sealed envelope
// plus the plaintext length. Providers never see plaintext.
type EncryptedBlob struct {
	Bytes        []byte
	OriginalSize int64
}

// RedundancyLevel selects how many providers must confirm a write before the
// store is considered successful.
type RedundancyLevel int

const (
	// RedundancyNone requires a single confirmed replica.
	RedundancyNone RedundancyLevel = iota

	// RedundancyDual requires two confirmed replicas.
	RedundancyDual

	// RedundancyFull requires a confirmed replica on every registered provider.
	RedundancyFull
)

// ParseRedundancyLevel parses a level name from config or the API.
func ParseRedundancyLevel(s string) (RedundancyLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return RedundancyNone, nil
	case "dual":
		return RedundancyDual, nil
	case "full":
		return RedundancyFull, nil
	default:
		return RedundancyNone, fmt.Errorf("unknown redundancy level %q", s)
	}
}

// String returns the level name.
func (l RedundancyLevel) String() string {
	switch l {
	case RedundancyNone:
		return "none"
	case RedundancyDual:
		return "dual"
	case RedundancyFull:
		return "full"
	default:
		return "unknown"
	}
}

// Threshold returns the number of confirmed writes required for a store to
// succeed, given the number of registered providers. The result is clamped to
// [1, registered], so a two-provider fleet at full redundancy needs both.
func (l RedundancyLevel) Threshold(registered int) int {
	var n int
	switch l {
	case RedundancyNone:
		n = 1
	case RedundancyDual:
		n = 2
	case RedundancyFull:
		n = registered
	default:
		n = 1
	}
	if n > registered {
		n = registered
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ProviderDescriptor is a point-in-time snapshot of a provider as seen by the
// health monitor. Reading a descriptor never touches the network.
type ProviderDescriptor struct {
	ID ProviderID

	// Status is the last observed connection state.
	Status ConnectionStatus

	// HealthScore is an exponentially weighted success rate in [0,1].
	HealthScore float64

	// LastError is the reason for StatusError, empty otherwise.
	LastError string

	// LastChecked is when the monitor last recorded an outcome.
	LastChecked time.Time

	// LastLatency is the duration of the most recent recorded operation.
	LastLatency time.Duration
}

// ProviderStatistics aggregates the fleet for dashboards and the status API.
// It is computed from descriptor snapshots without any provider I/O.
type ProviderStatistics struct {
	HealthyProviders   int
	TotalProviders     int
	AverageHealthScore float64
	Level              RedundancyLevel
	Primary            ProviderID
}

// FileRecord describes one stored object as reported by a provider listing.
type FileRecord struct {
	// ID is the provider-native identifier: an object path, a ledger
	// transaction ID or a content hash depending on the backend.
	ID string

	Name         string
	Size         int64
	ModifiedTime time.Time
}

// ProviderInfo carries the static facts about a backend adapter.
type ProviderInfo struct {
	ID          ProviderID
	DisplayName string

	// Endpoint is the host the adapter talks to, used for connectivity
	// diagnostics.
	Endpoint string

	// Mutable is false for append-only backends where a delete can only
	// remove the key mapping.
	Mutable bool

	// DelayedConfirmation is true when writes settle asynchronously and the
	// adapter blocks until the backend confirms them.
	DelayedConfirmation bool
}
