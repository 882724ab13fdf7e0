package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

const (
	envelopeVersion   = 1
	envelopeHeaderLen = 9 // version byte + 8-byte original size
	gcmNonceLen       = 12
)

// BlobCipher is the encryption boundary. Plaintext is sealed exactly once
// before any provider sees it and opened only after a replica has been
// fetched; providers handle opaque envelopes.
//
// Envelope format:
//
//	[version (1 byte)][original size (8 bytes, big endian)][nonce (12 bytes)][ciphertext]
//
// The 9-byte header is authenticated as GCM additional data, so a truncated
// or re-stamped envelope fails to open.
type BlobCipher struct {
	keyring Keyring
}

// NewBlobCipher creates a cipher backed by the given keyring.
func NewBlobCipher(keyring Keyring) *BlobCipher {
	return &BlobCipher{keyring: keyring}
}

// Encrypt seals plaintext under the key identified by key.KeyID.
// Every failure wraps interfaces.ErrEncryption; callers must not retry.
func (c *BlobCipher) Encrypt(plaintext []byte, key interfaces.StorageKey) (interfaces.EncryptedBlob, error) {
	aesGCM, err := c.gcmFor(key.KeyID)
	if err != nil {
		return interfaces.EncryptedBlob{}, err
	}

	header := make([]byte, envelopeHeaderLen)
	header[0] = envelopeVersion
	binary.BigEndian.PutUint64(header[1:], uint64(len(plaintext)))

	nonce := make([]byte, gcmNonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return interfaces.EncryptedBlob{}, fmt.Errorf("%w: failed to generate nonce: %v", interfaces.ErrEncryption, err)
	}

	sealed := aesGCM.Seal(nil, nonce, plaintext, header)

	out := make([]byte, 0, envelopeHeaderLen+gcmNonceLen+len(sealed))
	out = append(out, header...)
	out = append(out, nonce...)
	out = append(out, sealed...)

	return interfaces.EncryptedBlob{Bytes: out, OriginalSize: int64(len(plaintext))}, nil
}

// Decrypt opens an envelope fetched from a provider. A failure here is
// terminal for the retrieval: the same envelope will fail against any key,
// and a differently-keyed replica does not exist by construction.
func (c *BlobCipher) Decrypt(blob interfaces.EncryptedBlob, key interfaces.StorageKey) ([]byte, error) {
	if len(blob.Bytes) < envelopeHeaderLen+gcmNonceLen {
		return nil, fmt.Errorf("%w: envelope too short (%d bytes)", interfaces.ErrEncryption, len(blob.Bytes))
	}
	if blob.Bytes[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", interfaces.ErrEncryption, blob.Bytes[0])
	}

	aesGCM, err := c.gcmFor(key.KeyID)
	if err != nil {
		return nil, err
	}

	header := blob.Bytes[:envelopeHeaderLen]
	nonce := blob.Bytes[envelopeHeaderLen : envelopeHeaderLen+gcmNonceLen]
	ciphertext := blob.Bytes[envelopeHeaderLen+gcmNonceLen:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open envelope for %q: %v", interfaces.ErrEncryption, key.Filename, err)
	}

	if declared := binary.BigEndian.Uint64(header[1:]); declared != uint64(len(plaintext)) {
		return nil, fmt.Errorf("%w: envelope declares %d bytes, contains %d", interfaces.ErrEncryption, declared, len(plaintext))
	}

	return plaintext, nil
}

// DeclaredSize reads the plaintext length an envelope claims without
// decrypting it. The value is only authenticated once Decrypt succeeds.
func DeclaredSize(envelope []byte) (int64, error) {
	if len(envelope) < envelopeHeaderLen {
		return 0, fmt.Errorf("%w: envelope too short", interfaces.ErrEncryption)
	}
	if envelope[0] != envelopeVersion {
		return 0, fmt.Errorf("%w: unsupported envelope version %d", interfaces.ErrEncryption, envelope[0])
	}
	return int64(binary.BigEndian.Uint64(envelope[1:envelopeHeaderLen])), nil
}

func (c *BlobCipher) gcmFor(keyID string) (cipher.AEAD, error) {
	material, err := c.keyring.DataKey(keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: no key material for %q: %v", interfaces.ErrEncryption, keyID, err)
	}

	aesBlock, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %v", interfaces.ErrEncryption, err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %v", interfaces.ErrEncryption, err)
	}

	return aesGCM, nil
}
