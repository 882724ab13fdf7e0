// Package backup moves ciphertext replicas between the engine and an
// S3-compatible bucket for disaster recovery.
//
// Export walks the replica index and writes every tracked file's encrypted
// envelope into the bucket; Restore lists the bucket and re-seeds each
// object across the configured providers at the current redundancy level.
// Data stays sealed end to end: the exporter works below the encryption
// boundary and never holds plaintext or key material.
//
// Each archived object carries its key ID and original size as object
// metadata, so restoring into a fresh engine needs only a keyring derived
// from the same master key.
package backup
