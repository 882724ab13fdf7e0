/*
Package httpserver implements the HTTP front end of the storage redundancy
engine.

It exposes the file operations of the redundancy manager over a small REST
surface, plus the fleet introspection and routing control endpoints an
operator needs. Every file payload passes through the manager, so plaintext
is encrypted before any storage provider sees it and every response
reflects the replica fan-out outcome rather than a single backend's answer.

# Endpoints

File operations:

  - POST /api/v1/files/{filename} - Store a file (body is the raw content)
  - GET /api/v1/files/{filename} - Retrieve a file, ?raced=true races all holders
  - DELETE /api/v1/files/{filename} - Delete every replica
  - GET /api/v1/files - Merged listing across healthy providers

Fleet state and routing:

  - GET /api/v1/statistics - Aggregate fleet statistics
  - GET /api/v1/providers - Per-provider snapshots
  - POST /api/v1/providers/{provider}/test - On-demand connection diagnostic
  - PUT /api/v1/primary/{provider} - Switch the primary provider
  - PUT /api/v1/redundancy/{level} - Switch the redundancy level
  - GET /api/v1/events - Server-sent events stream of state changes

Operational:

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

# Error Contract

Failures map onto status codes by kind: 400 for request validation, 404
when no replica exists anywhere, 502 when a fan-out partially failed (the
JSON envelope carries per-provider reasons), 503 when providers exist but
none could be reached, and 500 for encryption faults. Bodies use the
api.ErrorResponse envelope.

# Example Usage

	cfg := &api.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		Log:                      logger,
		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}

	handler := httpserver.NewHandler(manager, logger)
	server, err := httpserver.New(cfg, handler)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
