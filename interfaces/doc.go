// Package interfaces defines core interfaces and types for the redundant
// storage engine, separating the contracts between components from their
// implementations.
//
// The package provides the following:
//
// # Provider Contract
//
// StorageProvider: The uniform capability contract every backend adapter
// implements (firebase, dropbox, arweave, ipfs). Adapters expose configure,
// initialize, store, retrieve, delete, list and describe operations over
// encrypted blobs; plaintext never crosses this interface.
//
// # Value Types
//
// - ProviderID: stable backend name used in logs, metrics and the API
// - StorageKey: filename plus encryption key identifier
// - EncryptedBlob: sealed ciphertext envelope with plaintext size
// - RedundancyLevel: none/dual/full write fan-out policy with Threshold
// - ProviderDescriptor: point-in-time health snapshot of one provider
// - ProviderStatistics: fleet aggregate for dashboards and the status API
// - FileRecord: one stored object as reported by a provider listing
//
// # Error Taxonomy
//
// Sentinel errors classify provider failures for retry and fallback policy:
// ErrNotConfigured, ErrNetworkFailure, ErrProviderUnavailable, ErrNotFound
// and ErrEncryption. Aggregate error types carry per-provider detail:
// RedundancyError for writes that missed their replica threshold,
// PartialDeleteError for deletes that left replicas behind, and InitError
// for failed initialization. NotFound is never conflated with
// unavailability: exhausting every replica reports ErrNotFound only when
// every attempted provider reported the object missing.
package interfaces
