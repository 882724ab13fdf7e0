package cryptoutils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Keyring supplies symmetric key material by identifier. Key custody is
// external to the engine: implementations only derive or look up material,
// they never create, rotate or persist it.
type Keyring interface {
	// DataKey returns the 32-byte data key for the given key ID.
	DataKey(keyID string) ([]byte, error)
}

// StaticKeyring derives per-key-ID data keys from a single master secret
// using HKDF-SHA256. Derivation is deterministic, so the same master secret
// yields the same data keys across restarts and devices.
type StaticKeyring struct {
	master []byte

	mu      sync.Mutex
	derived map[string][]byte
}

// NewStaticKeyring creates a keyring from a master secret.
// The master secret must be at least 32 bytes long.
func NewStaticKeyring(master []byte) (*StaticKeyring, error) {
	if len(master) < 32 {
		return nil, errors.New("master secret must be at least 32 bytes")
	}

	k := &StaticKeyring{
		master:  make([]byte, len(master)),
		derived: make(map[string][]byte),
	}
	copy(k.master, master)
	return k, nil
}

// NewStaticKeyringFromHex creates a keyring from a hex-encoded master secret,
// as passed on the command line or resolved from a secret reference.
func NewStaticKeyringFromHex(masterHex string) (*StaticKeyring, error) {
	master, err := hex.DecodeString(masterHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master secret: %w", err)
	}
	return NewStaticKeyring(master)
}

// NewPassphraseKeyring stretches a passphrase into a master secret with
// argon2id and derives data keys from it like NewStaticKeyring. The salt
// must be stable for the keyspace or previously written data cannot be
// opened.
func NewPassphraseKeyring(passphrase string, salt []byte) (*StaticKeyring, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	if len(salt) < 8 {
		return nil, errors.New("salt must be at least 8 bytes")
	}

	master := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	return NewStaticKeyring(master)
}

// DataKey derives the data key for keyID. Results are cached; the returned
// slice is a copy the caller may zero.
func (k *StaticKeyring) DataKey(keyID string) ([]byte, error) {
	if keyID == "" {
		return nil, errors.New("empty key id")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if cached, ok := k.derived[keyID]; ok {
		out := make([]byte, len(cached))
		copy(out, cached)
		return out, nil
	}

	r := hkdf.New(sha256.New, k.master, nil, []byte("storage-data-key:"+keyID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive data key: %w", err)
	}

	k.derived[keyID] = key
	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}
