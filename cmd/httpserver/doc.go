// Package main (cmd/httpserver) implements the storage redundancy engine server.
//
// The server exposes the unified file API over a fleet of heterogeneous
// storage providers: files are encrypted once, replicated according to the
// configured redundancy level, retrieved through health-ordered fallback,
// and tracked in a local replica index. Provider health is probed in the
// background and state transitions stream to subscribers over SSE.
//
// Configuration comes from a YAML file (see the config package); the
// command line selects the file and overrides the listen address and master
// key. Credentials referenced as vault:PATH#FIELD are resolved against
// Vault before any provider is built.
//
// The server implements graceful shutdown on termination signals
// (SIGINT/SIGTERM) and supports health checks, metrics collection, and
// optional profiling endpoints.
//
// Example usage:
//
//	storage-engine --config=/etc/storage-engine/config.yaml \
//	    --listen-addr=0.0.0.0:8080 \
//	    --metrics-addr=0.0.0.0:8090 \
//	    --log-json
package main
