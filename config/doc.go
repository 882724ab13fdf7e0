// Package config loads and validates the engine configuration.
//
// Configuration is a YAML file naming the provider locations, the
// redundancy level, the encryption material, and the replica index path.
// A minimal file:
//
//	providers:
//	  - firebase://TOKEN@backups-bucket/engine
//	  - dropbox://TOKEN@/engine
//	redundancy: dual
//	encryption:
//	  master_key: 0123...hex
//
// Environment variables override file values: VAULT_ADDR,
// STORAGE_ENGINE_MASTER_KEY and STORAGE_ENGINE_INDEX_PATH.
//
// # Secret References
//
// Provider locations and the master key may embed a vault:PATH#FIELD
// reference instead of a literal credential. ResolveSecrets replaces each
// reference with the field read from Vault before the provider factory
// parses the locations. KV version 2 paths keep their data/ element:
//
//	providers:
//	  - dropbox://vault:secret/data/storage#dropbox_token@/engine
//	encryption:
//	  master_key: vault:secret/data/storage#master_key
//
// The Vault token comes from the environment variable named by
// vault.token_env, VAULT_TOKEN when unset.
package config
