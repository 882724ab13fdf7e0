package redundancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// Replica is one confirmed copy of a file on one provider.
type Replica struct {
	Filename    string
	KeyID       string
	Provider    interfaces.ProviderID
	ContentHash string
	Size        int64
	StoredAt    time.Time
}

// ReplicaIndex persists which providers hold which files, the key ID each
// file was sealed with, and the ciphertext hash. It is what lets retrieval
// target known holders and decryption pick the right key after a restart.
type ReplicaIndex struct {
	db *sql.DB
}

// NewReplicaIndex creates the replica table if needed.
func NewReplicaIndex(db *sql.DB) (*ReplicaIndex, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS replicas (
		filename     TEXT NOT NULL,
		key_id       TEXT NOT NULL,
		provider     TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size         INTEGER NOT NULL DEFAULT 0,
		stored_at    TIMESTAMP NOT NULL,
		PRIMARY KEY (filename, provider)
	);
	CREATE INDEX IF NOT EXISTS idx_replicas_filename ON replicas(filename);`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create replica table: %w", err)
	}
	return &ReplicaIndex{db: db}, nil
}

// Record stores or replaces a replica row.
func (x *ReplicaIndex) Record(ctx context.Context, r Replica) error {
	storedAt := r.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO replicas (filename, key_id, provider, content_hash, size, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (filename, provider) DO UPDATE SET
			key_id = excluded.key_id,
			content_hash = excluded.content_hash,
			size = excluded.size,
			stored_at = excluded.stored_at`,
		r.Filename, r.KeyID, string(r.Provider), r.ContentHash, r.Size, storedAt)
	if err != nil {
		return fmt.Errorf("failed to record replica of %q on %s: %w", r.Filename, r.Provider, err)
	}
	return nil
}

// Holders returns the providers known to hold a file, oldest replica first.
func (x *ReplicaIndex) Holders(ctx context.Context, filename string) ([]interfaces.ProviderID, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT provider FROM replicas
		WHERE filename = ?
		ORDER BY stored_at, provider`,
		filename)
	if err != nil {
		return nil, fmt.Errorf("failed to query holders of %q: %w", filename, err)
	}
	defer rows.Close()

	var holders []interfaces.ProviderID
	for rows.Next() {
		var provider string
		if err := rows.Scan(&provider); err != nil {
			return nil, fmt.Errorf("failed to scan holder row: %w", err)
		}
		holders = append(holders, interfaces.ProviderID(provider))
	}
	return holders, rows.Err()
}

// Lookup returns the key ID and ciphertext hash a file was stored with, or
// interfaces.ErrNotFound when the file is untracked.
func (x *ReplicaIndex) Lookup(ctx context.Context, filename string) (keyID, contentHash string, err error) {
	row := x.db.QueryRowContext(ctx, `
		SELECT key_id, content_hash FROM replicas
		WHERE filename = ?
		ORDER BY stored_at DESC
		LIMIT 1`,
		filename)

	err = row.Scan(&keyID, &contentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: %q is not tracked", interfaces.ErrNotFound, filename)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to look up %q: %w", filename, err)
	}
	return keyID, contentHash, nil
}

// Forget removes one provider's replica row. Forgetting an absent row is
// not an error.
func (x *ReplicaIndex) Forget(ctx context.Context, filename string, provider interfaces.ProviderID) error {
	_, err := x.db.ExecContext(ctx, `
		DELETE FROM replicas WHERE filename = ? AND provider = ?`,
		filename, string(provider))
	if err != nil {
		return fmt.Errorf("failed to forget replica of %q on %s: %w", filename, provider, err)
	}
	return nil
}

// ForgetAll removes every replica row for a file.
func (x *ReplicaIndex) ForgetAll(ctx context.Context, filename string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM replicas WHERE filename = ?`, filename)
	if err != nil {
		return fmt.Errorf("failed to forget replicas of %q: %w", filename, err)
	}
	return nil
}

// Filenames returns every tracked filename, sorted.
func (x *ReplicaIndex) Filenames(ctx context.Context) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT DISTINCT filename FROM replicas ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked filenames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan filename row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
