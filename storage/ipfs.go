package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	shell "github.com/ipfs/go-ipfs-api"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// ipfsAPI is the slice of the IPFS HTTP API the provider uses. *shell.Shell
// satisfies it; tests substitute a fake.
type ipfsAPI interface {
	Add(r io.Reader, options ...shell.AddOpts) (string, error)
	Cat(path string) (io.ReadCloser, error)
	Unpin(path string) error
	IsUp() bool
}

// IPFSProvider stores envelopes as content-addressed blocks on an IPFS node.
// CIDs derive from content, so a KeyMap persists the filename to CID mapping
// and overwrites repoint it at the new CID. An optional remote pinning
// service keeps content alive beyond the local node.
type IPFSProvider struct {
	api      ipfsAPI
	pinning  *PinningClient
	keys     *KeyMap
	endpoint string
	log      *slog.Logger
}

// NewIPFSProvider creates an IPFS adapter. The pinning client may be nil, in
// which case content is only pinned on the local node.
func NewIPFSProvider(api ipfsAPI, pinning *PinningClient, keys *KeyMap, endpoint string, log *slog.Logger) *IPFSProvider {
	return &IPFSProvider{
		api:      api,
		pinning:  pinning,
		keys:     keys,
		endpoint: endpoint,
		log:      log.With(slog.String("provider", string(interfaces.ProviderIPFS))),
	}
}

// ID implements interfaces.StorageProvider.
func (p *IPFSProvider) ID() interfaces.ProviderID {
	return interfaces.ProviderIPFS
}

// Describe implements interfaces.StorageProvider.
func (p *IPFSProvider) Describe() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{
		ID:          interfaces.ProviderIPFS,
		DisplayName: "IPFS",
		Endpoint:    p.endpoint,
		Mutable:     false,
	}
}

// IsConfigured implements interfaces.StorageProvider.
func (p *IPFSProvider) IsConfigured() bool {
	return p.api != nil
}

// Initialize checks the node is up and, when configured, that the remote
// pinning service accepts our credentials.
func (p *IPFSProvider) Initialize(ctx context.Context) error {
	if !p.IsConfigured() {
		return fmt.Errorf("%w: ipfs node address missing", interfaces.ErrNotConfigured)
	}
	if !p.api.IsUp() {
		p.log.Warn("IPFS node unavailable", slog.String("endpoint", p.endpoint))
		return fmt.Errorf("%w: ipfs node is not up", interfaces.ErrProviderUnavailable)
	}

	if p.pinning == nil {
		p.log.Warn("No remote pinning service configured, content survives only while the local node keeps it")
		return nil
	}
	if err := p.pinning.Ping(ctx); err != nil {
		return fmt.Errorf("pinning service unreachable: %w", err)
	}
	return nil
}

// StoreData adds the envelope to the node and pins it remotely. On overwrite
// the mapping is repointed and the previous CID unpinned on a best effort
// basis.
func (p *IPFSProvider) StoreData(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error {
	if !p.api.IsUp() {
		return fmt.Errorf("%w: ipfs node is not up", interfaces.ErrProviderUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	prior, priorErr := p.keys.Get(ctx, key.Filename)

	cid, err := p.api.Add(bytes.NewReader(blob.Bytes))
	if err != nil {
		return fmt.Errorf("%w: ipfs add: %v", interfaces.ErrNetworkFailure, err)
	}

	if p.pinning != nil {
		if err := p.pinRemotely(ctx, cid); err != nil {
			return fmt.Errorf("failed to pin %s remotely: %w", cid, err)
		}
	}

	if err := p.keys.Put(ctx, key.Filename, cid, int64(len(blob.Bytes)), AddressConfirmed); err != nil {
		return err
	}

	if priorErr == nil && prior.Address != cid {
		p.unpinQuietly(ctx, prior.Address)
	}

	p.log.Debug("Stored content on IPFS",
		slog.String("cid", cid),
		slog.Int("size", len(blob.Bytes)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// RetrieveData implements interfaces.StorageProvider.
func (p *IPFSProvider) RetrieveData(ctx context.Context, key interfaces.StorageKey) (interfaces.EncryptedBlob, error) {
	entry, err := p.keys.Get(ctx, key.Filename)
	if err != nil {
		return interfaces.EncryptedBlob{}, err
	}
	if !p.api.IsUp() {
		p.log.Warn("IPFS node unavailable", slog.String("endpoint", p.endpoint))
		return interfaces.EncryptedBlob{}, fmt.Errorf("%w: ipfs node is not up", interfaces.ErrProviderUnavailable)
	}

	start := time.Now()
	reader, err := p.api.Cat(entry.Address)
	if err != nil {
		return interfaces.EncryptedBlob{}, fmt.Errorf("%w: ipfs cat %s: %v", interfaces.ErrNetworkFailure, entry.Address, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return interfaces.EncryptedBlob{}, fmt.Errorf("%w: ipfs cat %s: %v", interfaces.ErrNetworkFailure, entry.Address, err)
	}

	p.log.Debug("Retrieved content from IPFS",
		slog.String("cid", entry.Address),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return interfaces.EncryptedBlob{Bytes: data}, nil
}

// DeleteData unpins the content remotely and locally, then drops the
// mapping. A failed remote unpin keeps the mapping so the delete can be
// retried instead of leaking a paid pin.
func (p *IPFSProvider) DeleteData(ctx context.Context, key interfaces.StorageKey) error {
	entry, err := p.keys.Get(ctx, key.Filename)
	if err != nil {
		return err
	}

	if p.pinning != nil {
		if err := p.pinning.Unpin(ctx, entry.Address); err != nil {
			return fmt.Errorf("failed to unpin %s remotely: %w", entry.Address, err)
		}
	}
	if err := p.api.Unpin(entry.Address); err != nil {
		p.log.Debug("Local unpin failed", slog.String("cid", entry.Address), "err", err)
	}

	if err := p.keys.Delete(ctx, key.Filename); err != nil {
		return err
	}
	p.log.Debug("Deleted content from IPFS", slog.String("cid", entry.Address))
	return nil
}

// ListFiles implements interfaces.StorageProvider.
func (p *IPFSProvider) ListFiles(ctx context.Context) ([]interfaces.FileRecord, error) {
	entries, err := p.keys.List(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]interfaces.FileRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, interfaces.FileRecord{
			ID:           entry.Address,
			Name:         entry.Filename,
			Size:         entry.Size,
			ModifiedTime: entry.CreatedAt,
		})
	}
	return records, nil
}

// GetFileInfo implements interfaces.StorageProvider.
func (p *IPFSProvider) GetFileInfo(key interfaces.StorageKey) (interfaces.FileRecord, bool) {
	entry, err := p.keys.Get(context.Background(), key.Filename)
	if err != nil {
		return interfaces.FileRecord{}, false
	}
	return interfaces.FileRecord{
		ID:           entry.Address,
		Name:         entry.Filename,
		Size:         entry.Size,
		ModifiedTime: entry.CreatedAt,
	}, true
}

// pinRemotely retries transient pinning failures a few times. Credential
// problems are permanent and surface immediately.
func (p *IPFSProvider) pinRemotely(ctx context.Context, cid string) error {
	op := func() error {
		err := p.pinning.Pin(ctx, cid)
		if errors.Is(err, interfaces.ErrNotConfigured) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithMaxRetries(backoff.WithContext(backoff.NewExponentialBackOff(), ctx), 3)
	return backoff.Retry(op, policy)
}

// unpinQuietly releases a replaced CID. Failures only cost pin quota, so
// they are logged and swallowed.
func (p *IPFSProvider) unpinQuietly(ctx context.Context, cid string) {
	if err := p.api.Unpin(cid); err != nil {
		p.log.Debug("Failed to unpin replaced content locally", slog.String("cid", cid), "err", err)
	}
	if p.pinning != nil {
		if err := p.pinning.Unpin(ctx, cid); err != nil {
			p.log.Debug("Failed to unpin replaced content remotely", slog.String("cid", cid), "err", err)
		}
	}
}
