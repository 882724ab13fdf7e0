// Package cryptoutils implements the engine's encryption boundary.
//
// Every payload is sealed exactly once, before any storage provider sees it,
// and opened only after a replica has been fetched back. Providers store and
// return opaque envelopes; plaintext never leaves this package except to the
// caller who asked for it.
//
// # Keyring
//
// Key custody is external to the engine. The Keyring interface supplies
// 32-byte data keys by identifier; StaticKeyring derives them from a master
// secret with HKDF-SHA256 so the same secret reproduces the same keys on any
// device. NewPassphraseKeyring stretches a passphrase with argon2id first.
//
// # BlobCipher
//
// BlobCipher seals with AES-256-GCM. The envelope records a format version
// and the plaintext size in a header that is authenticated as additional
// data, so truncation and re-stamping are detected on open. Failures wrap
// interfaces.ErrEncryption and are never retried by callers: re-running the
// same operation against the same envelope cannot succeed, and retrying a
// decrypt against a different replica only fetches the same ciphertext again.
package cryptoutils
