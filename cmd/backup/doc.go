// Package main (cmd/backup) implements cold export and restore for the
// storage redundancy engine.
//
// The tool builds the engine directly from the YAML configuration, without
// the HTTP server, and moves ciphertext between the provider fleet and an
// S3-compatible bucket:
//
//	export  - Walk the replica index and copy every tracked file's
//	          encrypted envelope into the bucket. Replicas are fetched
//	          through the usual health-ordered fallback, so a degraded
//	          fleet can still be drained.
//	restore - List the bucket under the prefix and re-seed each object
//	          across the configured providers at the configured redundancy
//	          level.
//
// Data stays encrypted end to end; the bucket never sees plaintext or key
// material. Objects carry their key ID as metadata, so restoring into a
// fresh engine needs only the same master key.
//
// The pass result is printed as JSON and the process exits non-zero when
// any file failed, so schedulers can alert on partial passes.
//
// Example usage:
//
//	storage-backup --config=/etc/storage-engine/config.yaml \
//	    --s3-bucket=engine-cold-storage \
//	    --s3-endpoint=https://minio.internal:9000 \
//	    --s3-path-style \
//	    export
package main
