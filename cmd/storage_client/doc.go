// Package main (cmd/storage_client) implements an operator client for the
// storage redundancy engine's HTTP API.
//
// The client provides command-line access to file operations and fleet
// control:
//
//	store          - Read a payload from a file or stdin and replicate it
//	                 under the given filename. Prints the server's
//	                 confirmation as JSON.
//	retrieve       - Fetch and decrypt a file to stdout or a local path.
//	                 --raced races all healthy holders instead of walking
//	                 them in health order.
//	delete         - Remove a file from every provider holding a replica.
//	list           - List files merged across all providers.
//	stats          - Show aggregate fleet statistics.
//	providers      - Show per-provider configuration, status and health.
//	test           - Run a store/read/verify/delete probe on one provider.
//	set-primary    - Route future operations through a different primary.
//	set-redundancy - Change the redundancy level (none, dual, full).
//
// Responses are printed as JSON on stdout, so the client composes with jq
// and shell scripts. Server-side failures carry the API error envelope,
// including per-provider reasons for replication shortfalls.
package main
