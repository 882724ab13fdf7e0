package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// Address lifecycle for backends whose writes settle asynchronously.
const (
	// AddressPending marks a write that was submitted but not yet confirmed.
	// Pending addresses never count toward redundancy and are not listed.
	AddressPending = "pending"

	// AddressConfirmed marks a settled write.
	AddressConfirmed = "confirmed"
)

// KeyEntry is one row of a provider's address map.
type KeyEntry struct {
	Filename  string
	Address   string
	Size      int64
	Status    string
	CreatedAt time.Time
}

// KeyMap persists filename to backend-native address mappings for providers
// whose addressing derives from content rather than from the key: IPFS CIDs
// and ledger transaction IDs. The mapping is what lets those backends honor
// the uniform retrieve-by-filename contract, so it must survive restarts.
type KeyMap struct {
	db       *sql.DB
	provider interfaces.ProviderID
}

// OpenDB opens the engine's SQLite database, creating it if needed.
// The same handle is shared by every KeyMap and the replica index.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	return db, nil
}

// NewKeyMap creates the address table if needed and scopes the map to one
// provider.
func NewKeyMap(db *sql.DB, provider interfaces.ProviderID) (*KeyMap, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS provider_addresses (
		provider   TEXT NOT NULL,
		filename   TEXT NOT NULL,
		address    TEXT NOT NULL,
		size       INTEGER NOT NULL DEFAULT 0,
		status     TEXT NOT NULL DEFAULT 'confirmed',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (provider, filename)
	);
	CREATE INDEX IF NOT EXISTS idx_provider_addresses_status
		ON provider_addresses(provider, status);`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create address table: %w", err)
	}

	return &KeyMap{db: db, provider: provider}, nil
}

// Put records or replaces the address for a filename.
func (m *KeyMap) Put(ctx context.Context, filename, address string, size int64, status string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO provider_addresses (provider, filename, address, size, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, filename) DO UPDATE SET
			address = excluded.address,
			size = excluded.size,
			status = excluded.status,
			created_at = excluded.created_at`,
		string(m.provider), filename, address, size, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record address for %q: %w", filename, err)
	}
	return nil
}

// Get returns the entry for a filename, or interfaces.ErrNotFound.
func (m *KeyMap) Get(ctx context.Context, filename string) (KeyEntry, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT filename, address, size, status, created_at
		FROM provider_addresses
		WHERE provider = ? AND filename = ?`,
		string(m.provider), filename)

	var entry KeyEntry
	err := row.Scan(&entry.Filename, &entry.Address, &entry.Size, &entry.Status, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return KeyEntry{}, fmt.Errorf("%w: no address for %q", interfaces.ErrNotFound, filename)
	}
	if err != nil {
		return KeyEntry{}, fmt.Errorf("failed to look up address for %q: %w", filename, err)
	}
	return entry, nil
}

// SetStatus transitions an entry between pending and confirmed.
func (m *KeyMap) SetStatus(ctx context.Context, filename, status string) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE provider_addresses SET status = ?
		WHERE provider = ? AND filename = ?`,
		status, string(m.provider), filename)
	if err != nil {
		return fmt.Errorf("failed to update status for %q: %w", filename, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: no address for %q", interfaces.ErrNotFound, filename)
	}
	return nil
}

// Delete removes the mapping for a filename, or returns
// interfaces.ErrNotFound when none exists.
func (m *KeyMap) Delete(ctx context.Context, filename string) error {
	res, err := m.db.ExecContext(ctx, `
		DELETE FROM provider_addresses
		WHERE provider = ? AND filename = ?`,
		string(m.provider), filename)
	if err != nil {
		return fmt.Errorf("failed to delete address for %q: %w", filename, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: no address for %q", interfaces.ErrNotFound, filename)
	}
	return nil
}

// List returns every confirmed entry ordered by filename.
func (m *KeyMap) List(ctx context.Context) ([]KeyEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT filename, address, size, status, created_at
		FROM provider_addresses
		WHERE provider = ? AND status = ?
		ORDER BY filename`,
		string(m.provider), AddressConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	var entries []KeyEntry
	for rows.Next() {
		var entry KeyEntry
		if err := rows.Scan(&entry.Filename, &entry.Address, &entry.Size, &entry.Status, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan address row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
