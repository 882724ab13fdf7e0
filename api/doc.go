/*
Package api defines the HTTP surface of the storage redundancy engine: the
wire types exchanged with the server, a typed client, and the server
configuration shared by the binaries.

# Wire Types

Request and response bodies are JSON except for file payloads, which travel
as raw octet streams. Domain types never cross the wire directly; each DTO
has a constructor converting from the engine's internal snapshot types, so
the JSON contract can stay stable while internals move.

Errors use a single envelope, ErrorResponse. When an aggregate failure has
per-provider detail, the envelope carries a provider-to-reason map in
addition to the top-level message:

	{
	  "error": "insufficient redundancy: 1 of 2 providers confirmed the write",
	  "confirmed": 1,
	  "required": 2,
	  "providers": {"dropbox": "network failure: connection refused"}
	}

# Client

Client wraps the full API: file operations, listing, statistics, provider
snapshots, connection diagnostics, and routing changes. Methods return
decoded DTOs and fold error envelopes into the returned error text.

	client := &api.Client{ServerAddr: "http://localhost:8080"}
	stats, err := client.Statistics(ctx)

# Server Configuration

HTTPServerConfig carries listen addresses, the drain and shutdown windows
and HTTP timeouts. It is populated from command line flags by cmd/flags and
consumed by the httpserver package.
*/
package api
