package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

const (
	defaultMinConfirmations = 2
	defaultPollInterval     = 10 * time.Second
)

// ArweaveProvider writes envelopes to the permanent ledger as data
// transactions. The ledger addresses by transaction ID, so a KeyMap persists
// the filename to ID mapping. Writes settle slowly: a store is only
// confirmed once the transaction has enough confirmations, and deletes only
// remove the mapping since ledger data is permanent.
type ArweaveProvider struct {
	wallet           *LedgerWallet
	gateway          LedgerGateway
	keys             *KeyMap
	minConfirmations int64
	pollInterval     time.Duration
	endpoint         string
	log              *slog.Logger
}

// NewArweaveProvider creates a ledger adapter. A nil wallet or gateway
// builds an unconfigured provider that fails initialization.
func NewArweaveProvider(wallet *LedgerWallet, gateway LedgerGateway, keys *KeyMap, minConfirmations int64, pollInterval time.Duration, endpoint string, log *slog.Logger) *ArweaveProvider {
	if minConfirmations <= 0 {
		minConfirmations = defaultMinConfirmations
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &ArweaveProvider{
		wallet:           wallet,
		gateway:          gateway,
		keys:             keys,
		minConfirmations: minConfirmations,
		pollInterval:     pollInterval,
		endpoint:         endpoint,
		log:              log.With(slog.String("provider", string(interfaces.ProviderArweave))),
	}
}

// ID implements interfaces.StorageProvider.
func (p *ArweaveProvider) ID() interfaces.ProviderID {
	return interfaces.ProviderArweave
}

// Describe implements interfaces.StorageProvider.
func (p *ArweaveProvider) Describe() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{
		ID:                  interfaces.ProviderArweave,
		DisplayName:         "Arweave",
		Endpoint:            p.endpoint,
		Mutable:             false,
		DelayedConfirmation: true,
	}
}

// IsConfigured implements interfaces.StorageProvider.
func (p *ArweaveProvider) IsConfigured() bool {
	return p.wallet != nil && p.gateway != nil
}

// Initialize verifies the gateway answers and logs the wallet balance so
// operators see an underfunded wallet before the first write fails.
func (p *ArweaveProvider) Initialize(ctx context.Context) error {
	if !p.IsConfigured() {
		return fmt.Errorf("%w: ledger wallet or gateway missing", interfaces.ErrNotConfigured)
	}

	if _, err := p.gateway.Anchor(ctx); err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	balance, err := p.gateway.Balance(ctx, p.wallet.Address())
	if err != nil {
		return fmt.Errorf("failed to check wallet balance: %w", err)
	}

	p.log.Debug("Ledger gateway reachable",
		slog.String("address", p.wallet.Address()),
		slog.Int64("balance_winston", balance))
	return nil
}

// StoreData submits a signed data transaction and waits for it to confirm.
// The mapping is recorded as pending before the wait, so a timeout here
// leaves a resumable trace instead of orphaning the transaction.
func (p *ArweaveProvider) StoreData(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error {
	start := time.Now()

	price, err := p.gateway.Price(ctx, len(blob.Bytes))
	if err != nil {
		return fmt.Errorf("failed to quote storage price: %w", err)
	}
	balance, err := p.gateway.Balance(ctx, p.wallet.Address())
	if err != nil {
		return fmt.Errorf("failed to check wallet balance: %w", err)
	}
	if balance < price {
		return fmt.Errorf("%w: wallet balance %d below price %d winston",
			interfaces.ErrProviderUnavailable, balance, price)
	}

	anchor, err := p.gateway.Anchor(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch transaction anchor: %w", err)
	}

	tx := &LedgerTransaction{
		LastTx:   anchor,
		Quantity: "0",
		Reward:   strconv.FormatInt(price, 10),
		Data:     base64.RawURLEncoding.EncodeToString(blob.Bytes),
		Tags: []LedgerTag{
			NewLedgerTag("App-Name", "storage-redundancy-engine"),
			NewLedgerTag("Content-Type", "application/octet-stream"),
			NewLedgerTag("Filename", key.Filename),
		},
	}
	if err := p.wallet.SignTransaction(tx); err != nil {
		return err
	}

	if err := p.gateway.SubmitTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to submit transaction: %w", err)
	}
	if err := p.keys.Put(ctx, key.Filename, tx.ID, int64(len(blob.Bytes)), AddressPending); err != nil {
		return err
	}

	p.log.Debug("Submitted ledger transaction",
		slog.String("tx", tx.ID),
		slog.Int64("reward_winston", price),
		slog.Int("size", len(blob.Bytes)))

	if err := p.awaitConfirmation(ctx, tx.ID); err != nil {
		return fmt.Errorf("transaction %s not confirmed: %w", tx.ID, err)
	}
	if err := p.keys.SetStatus(ctx, key.Filename, AddressConfirmed); err != nil {
		return err
	}

	p.log.Debug("Ledger transaction confirmed",
		slog.String("tx", tx.ID),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// RetrieveData implements interfaces.StorageProvider. A pending mapping is
// re-checked once: confirmed transactions are promoted, anything still
// waiting reports the provider unavailable rather than not found.
func (p *ArweaveProvider) RetrieveData(ctx context.Context, key interfaces.StorageKey) (interfaces.EncryptedBlob, error) {
	entry, err := p.keys.Get(ctx, key.Filename)
	if err != nil {
		return interfaces.EncryptedBlob{}, err
	}

	if entry.Status == AddressPending {
		status, err := p.gateway.TransactionStatus(ctx, entry.Address)
		if err != nil {
			return interfaces.EncryptedBlob{}, fmt.Errorf("failed to check pending transaction %s: %w", entry.Address, err)
		}
		if status.Pending || status.Confirmations < p.minConfirmations {
			return interfaces.EncryptedBlob{}, fmt.Errorf("%w: transaction %s awaiting confirmation",
				interfaces.ErrProviderUnavailable, entry.Address)
		}
		if err := p.keys.SetStatus(ctx, key.Filename, AddressConfirmed); err != nil {
			return interfaces.EncryptedBlob{}, err
		}
	}

	data, err := p.gateway.TransactionData(ctx, entry.Address)
	if err != nil {
		return interfaces.EncryptedBlob{}, err
	}

	p.log.Debug("Retrieved ledger transaction data",
		slog.String("tx", entry.Address),
		slog.Int("size", len(data)))
	return interfaces.EncryptedBlob{Bytes: data}, nil
}

// DeleteData removes the filename mapping. The transaction itself is
// permanent and stays on the ledger.
func (p *ArweaveProvider) DeleteData(ctx context.Context, key interfaces.StorageKey) error {
	entry, err := p.keys.Get(ctx, key.Filename)
	if err != nil {
		return err
	}
	if err := p.keys.Delete(ctx, key.Filename); err != nil {
		return err
	}
	p.log.Debug("Unmapped ledger transaction",
		slog.String("filename", key.Filename),
		slog.String("tx", entry.Address))
	return nil
}

// ListFiles implements interfaces.StorageProvider. Only confirmed mappings
// are listed.
func (p *ArweaveProvider) ListFiles(ctx context.Context) ([]interfaces.FileRecord, error) {
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

// GetFileInfo implements interfaces.StorageProvider. Pending mappings are
// reported too; retrieval decides whether they are readable yet.
func (p *ArweaveProvider) GetFileInfo(key interfaces.StorageKey) (interfaces.FileRecord, bool) {
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

// awaitConfirmation polls the transaction status until it reaches the
// confirmation floor. Transient gateway errors and the not-yet-indexed
// window are retried; the context bounds the whole wait.
func (p *ArweaveProvider) awaitConfirmation(ctx context.Context, id string) error {
	op := func() error {
		status, err := p.gateway.TransactionStatus(ctx, id)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		if status.Pending || status.Confirmations < p.minConfirmations {
			return fmt.Errorf("%d of %d confirmations", status.Confirmations, p.minConfirmations)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(p.pollInterval), ctx))
}
