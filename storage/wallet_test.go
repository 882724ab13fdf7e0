package storage

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWalletJSON(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	jwk := map[string]string{
		"kty": "RSA",
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		"d":   base64.RawURLEncoding.EncodeToString(key.D.Bytes()),
		"p":   base64.RawURLEncoding.EncodeToString(key.Primes[0].Bytes()),
		"q":   base64.RawURLEncoding.EncodeToString(key.Primes[1].Bytes()),
	}
	raw, err := json.Marshal(jwk)
	require.NoError(t, err)
	return raw
}

func testWallet(t *testing.T) *LedgerWallet {
	t.Helper()
	wallet, err := NewLedgerWallet(testWalletJSON(t))
	require.NoError(t, err)
	return wallet
}

func TestLedgerWalletParse(t *testing.T) {
	wallet := testWallet(t)

	modulus, err := base64.RawURLEncoding.DecodeString(wallet.Owner())
	require.NoError(t, err)
	wantAddr := sha256.Sum256(modulus)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(wantAddr[:]), wallet.Address())
}

func TestLedgerWalletRejectsBadKeyfiles(t *testing.T) {
	tests := []struct {
		name    string
		keyfile string
	}{
		{"not json", "{{{"},
		{"wrong key type", `{"kty":"EC","n":"AQ","e":"AQ","d":"AQ","p":"AQ","q":"AQ"}`},
		{"missing modulus", `{"kty":"RSA","e":"AQAB","d":"AQ","p":"AQ","q":"AQ"}`},
		{"garbage base64", `{"kty":"RSA","n":"!!!","e":"AQAB","d":"AQ","p":"AQ","q":"AQ"}`},
		{"inconsistent key", `{"kty":"RSA","n":"AQAB","e":"AQAB","d":"AQ","p":"Aw","q":"BQ"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLedgerWallet([]byte(tc.keyfile))
			assert.Error(t, err)
		})
	}
}

func TestLedgerWalletSignTransaction(t *testing.T) {
	wallet := testWallet(t)

	tx := &LedgerTransaction{
		LastTx:   base64.RawURLEncoding.EncodeToString([]byte("anchor")),
		Quantity: "0",
		Reward:   "1200",
		Data:     base64.RawURLEncoding.EncodeToString([]byte("envelope-bytes")),
		Tags: []LedgerTag{
			NewLedgerTag("App-Name", "storage-redundancy-engine"),
			NewLedgerTag("Filename", "backup.tar"),
		},
	}
	require.NoError(t, wallet.SignTransaction(tx))

	assert.Equal(t, wallet.Owner(), tx.Owner)
	require.NotEmpty(t, tx.Signature)
	require.NotEmpty(t, tx.ID)

	sig, err := base64.RawURLEncoding.DecodeString(tx.Signature)
	require.NoError(t, err)

	// The ID is the hash of the signature.
	idHash := sha256.Sum256(sig)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(idHash[:]), tx.ID)

	// The signature verifies against the canonical payload.
	payload, err := tx.signaturePayload()
	require.NoError(t, err)
	digest := sha256.Sum256(payload)
	err = rsa.VerifyPSS(&wallet.key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	assert.NoError(t, err)
}

func TestLedgerTagRoundTrip(t *testing.T) {
	tag := NewLedgerTag("Content-Type", "application/octet-stream")

	name, err := base64.RawURLEncoding.DecodeString(tag.Name)
	require.NoError(t, err)
	value, err := base64.RawURLEncoding.DecodeString(tag.Value)
	require.NoError(t, err)
	assert.Equal(t, "Content-Type", string(name))
	assert.Equal(t, "application/octet-stream", string(value))
}
