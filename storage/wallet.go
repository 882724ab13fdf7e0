package storage

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
)

// LedgerWallet signs transactions with the RSA key from a ledger keyfile.
// The keyfile is a JWK; the wallet address derives from the public modulus.
type LedgerWallet struct {
	key     *rsa.PrivateKey
	owner   string
	address string
}

// NewLedgerWallet parses a JWK keyfile.
func NewLedgerWallet(keyfile []byte) (*LedgerWallet, error) {
	var jwk struct {
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
		D   string `json:"d"`
		P   string `json:"p"`
		Q   string `json:"q"`
	}
	if err := json.Unmarshal(keyfile, &jwk); err != nil {
		return nil, fmt.Errorf("failed to parse keyfile: %w", err)
	}
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q, want RSA", jwk.Kty)
	}

	n, err := jwkInt(jwk.N, "n")
	if err != nil {
		return nil, err
	}
	e, err := jwkInt(jwk.E, "e")
	if err != nil {
		return nil, err
	}
	d, err := jwkInt(jwk.D, "d")
	if err != nil {
		return nil, err
	}
	p, err := jwkInt(jwk.P, "p")
	if err != nil {
		return nil, err
	}
	q, err := jwkInt(jwk.Q, "q")
	if err != nil {
		return nil, err
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	key.Precompute()
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("keyfile holds an invalid RSA key: %w", err)
	}

	modulus := n.Bytes()
	addrHash := sha256.Sum256(modulus)
	return &LedgerWallet{
		key:     key,
		owner:   base64.RawURLEncoding.EncodeToString(modulus),
		address: base64.RawURLEncoding.EncodeToString(addrHash[:]),
	}, nil
}

// NewLedgerWalletFromFile loads and parses a JWK keyfile from disk.
func NewLedgerWalletFromFile(path string) (*LedgerWallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyfile: %w", err)
	}
	return NewLedgerWallet(raw)
}

// Address returns the wallet address, the base64url SHA-256 of the modulus.
func (w *LedgerWallet) Address() string {
	return w.address
}

// Owner returns the base64url public modulus carried in transactions.
func (w *LedgerWallet) Owner() string {
	return w.owner
}

// SignTransaction fills in the owner, signature and ID of a prepared
// transaction. The ID is the SHA-256 of the signature, per the ledger's
// transaction format.
func (w *LedgerWallet) SignTransaction(tx *LedgerTransaction) error {
	tx.Owner = w.owner

	payload, err := tx.signaturePayload()
	if err != nil {
		return err
	}
	digest := sha256.Sum256(payload)

	sig, err := rsa.SignPSS(rand.Reader, w.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	idHash := sha256.Sum256(sig)
	tx.Signature = base64.RawURLEncoding.EncodeToString(sig)
	tx.ID = base64.RawURLEncoding.EncodeToString(idHash[:])
	return nil
}

func jwkInt(encoded, field string) (*big.Int, error) {
	if encoded == "" {
		return nil, fmt.Errorf("keyfile is missing field %q", field)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode keyfile field %q: %w", field, err)
	}
	return new(big.Int).SetBytes(raw), nil
}
