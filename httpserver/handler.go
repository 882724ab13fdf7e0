package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxalabs/storage-redundancy-engine/api"
	"github.com/voxalabs/storage-redundancy-engine/interfaces"
	"github.com/voxalabs/storage-redundancy-engine/redundancy"
)

const (
	// maxUploadBytes caps a stored file's plaintext. Uploads are buffered
	// in memory for encryption before they fan out to providers.
	maxUploadBytes = 256 << 20

	// sseKeepaliveInterval is how often the event stream emits a comment
	// line so idle connections survive proxies.
	sseKeepaliveInterval = 15 * time.Second
)

// Handler processes HTTP requests for the storage redundancy engine. All
// file payloads pass through the redundancy manager, so plaintext is
// encrypted before any provider sees it and every response reflects the
// fan-out outcome.
type Handler struct {
	manager *redundancy.Manager
	log     *slog.Logger
}

// NewHandler creates a new HTTP request handler around the manager.
func NewHandler(manager *redundancy.Manager, log *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log,
	}
}

// HandleStore stores the request body under the filename taken from the
// URL path. The body is encrypted and replicated to as many providers as
// the active redundancy level requires.
//
// URL format: POST /api/v1/files/{filename}
//
// Request body: raw file content
//
// Response: JSON-encoded api.StoreResponse
//
// Status codes:
//   - 201 Created: the redundancy threshold was met
//   - 400 Bad Request: invalid filename or unreadable body
//   - 502 Bad Gateway: fewer providers confirmed than required; the
//     envelope carries per-provider reasons and the replicas that did
//     confirm stay stored
//   - 503 Service Unavailable: no configured provider could be reached
func (h *Handler) HandleStore(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "*")
	if err := interfaces.ValidateFilename(filename); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	plaintext, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Error("Failed to read upload body", "err", err, "filename", filename)
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: fmt.Sprintf("could not read request body: %v", err)})
		return
	}

	if err := h.manager.Store(r.Context(), plaintext, filename); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, api.StoreResponse{
		Filename: filename,
		Size:     int64(len(plaintext)),
	})
}

// HandleRetrieve returns the decrypted content of a stored file. By default
// providers are tried in fallback order; with ?raced=true all likely
// holders are queried concurrently and the first replica that decrypts
// wins.
//
// URL format: GET /api/v1/files/{filename}[?raced=true]
//
// Response: raw file content
//
// Status codes:
//   - 200 OK: file retrieved and decrypted
//   - 400 Bad Request: invalid filename
//   - 404 Not Found: no provider holds a replica
//   - 500 Internal Server Error: replicas exist but none decrypts cleanly
//   - 503 Service Unavailable: holders exist but none could be reached
func (h *Handler) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "*")
	if err := interfaces.ValidateFilename(filename); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	var plaintext []byte
	var err error
	if r.URL.Query().Get("raced") == "true" {
		plaintext, err = h.manager.RetrieveRaced(r.Context(), filename)
	} else {
		plaintext, err = h.manager.Retrieve(r.Context(), filename)
	}
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(plaintext)))
	w.Write(plaintext)
}

// HandleDelete removes the file from every provider holding a replica and
// drops it from the replica index.
//
// URL format: DELETE /api/v1/files/{filename}
//
// Status codes:
//   - 204 No Content: every replica is gone
//   - 404 Not Found: nothing to delete anywhere
//   - 502 Bad Gateway: some replicas were removed but others were not;
//     the envelope names the providers that still hold the file
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "*")
	if err := interfaces.ValidateFilename(filename); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.manager.Delete(r.Context(), filename); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListFiles returns the merged listing across all healthy providers,
// newest metadata winning for files present on several backends.
//
// URL format: GET /api/v1/files
//
// Response: JSON-encoded api.FileListResponse
func (h *Handler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	records, err := h.manager.ListFiles(r.Context())
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	files := make([]api.FileSummary, 0, len(records))
	for _, rec := range records {
		files = append(files, api.NewFileSummary(rec))
	}
	h.writeJSON(w, http.StatusOK, api.FileListResponse{Files: files})
}

// HandleStatistics returns aggregate fleet statistics computed from cached
// health state, without touching any provider.
//
// URL format: GET /api/v1/statistics
func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, api.NewStatistics(h.manager.Statistics()))
}

// HandleProviders returns a point-in-time snapshot of every registered
// provider in registration order.
//
// URL format: GET /api/v1/providers
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	states := h.manager.Providers()
	providers := make([]api.ProviderStatus, 0, len(states))
	for _, st := range states {
		providers = append(providers, api.NewProviderStatus(st))
	}
	h.writeJSON(w, http.StatusOK, api.ProviderListResponse{
		Providers:  providers,
		Primary:    h.manager.Primary().String(),
		Redundancy: h.manager.Level().String(),
	})
}

// HandleTestProvider runs an on-demand connection diagnostic against one
// provider. A failing probe still returns 200: the report carries the
// classified failure so the caller can tell a DNS problem from a rejected
// request.
//
// URL format: POST /api/v1/providers/{provider}/test
//
// Response: JSON-encoded api.TestReport
//
// Status codes:
//   - 200 OK: probe ran, see the report for the outcome
//   - 400 Bad Request: unknown provider name
//   - 404 Not Found: provider not registered with this engine
func (h *Handler) HandleTestProvider(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.ParseProviderID(r.PathValue("provider"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.manager.TestConnection(r.Context(), id)
	if err != nil {
		h.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewTestReport(result))
}

// HandleSetPrimary makes the named provider the first attempted on every
// subsequent operation.
//
// URL format: PUT /api/v1/primary/{provider}
//
// Status codes:
//   - 200 OK: primary switched, response reports the active routing
//   - 400 Bad Request: unknown, unregistered or unconfigured provider
func (h *Handler) HandleSetPrimary(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.ParseProviderID(r.PathValue("provider"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.manager.SetPrimary(id); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	h.writeSettings(w)
}

// HandleSetRedundancy switches the redundancy level applied to subsequent
// stores. Already stored files keep their replica count.
//
// URL format: PUT /api/v1/redundancy/{level}
//
// Status codes:
//   - 200 OK: level switched, response reports the active routing
//   - 400 Bad Request: unknown level name
func (h *Handler) HandleSetRedundancy(w http.ResponseWriter, r *http.Request) {
	level, err := interfaces.ParseRedundancyLevel(r.PathValue("level"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.manager.SetRedundancyLevel(level); err != nil {
		h.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	h.writeSettings(w)
}

func (h *Handler) writeSettings(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, api.SettingResponse{
		Primary:    h.manager.Primary().String(),
		Redundancy: h.manager.Level().String(),
	})
}

// HandleEvents streams provider state changes as server-sent events. Each
// event's SSE type mirrors the engine event type, with the JSON-encoded
// event as data. The stream ends when the client disconnects.
//
// URL format: GET /api/v1/events
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "streaming unsupported"})
		return
	}

	// The server's write timeout would cut long-lived streams off; clear
	// the deadline for this connection only.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("Could not clear write deadline for event stream", "err", err)
	}

	events := h.manager.Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("Failed to encode event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeStorageError maps a storage operation failure onto a status code and
// JSON envelope. Aggregate failures keep their per-provider reasons.
func (h *Handler) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	status, envelope := storageErrorResponse(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Storage operation failed", "err", err, "path", r.URL.Path, "status", status)
	} else {
		h.log.Debug("Storage operation rejected", "err", err, "path", r.URL.Path, "status", status)
	}
	h.writeJSON(w, status, envelope)
}

// storageErrorResponse classifies a manager error. Aggregate types are
// checked before sentinel matches: a redundancy shortfall wraps provider
// errors, and unwrapping first would misfile it under whatever failure
// happened to be inside.
func storageErrorResponse(err error) (int, api.ErrorResponse) {
	envelope := api.ErrorResponse{Error: err.Error()}

	var redundancyErr *interfaces.RedundancyError
	if errors.As(err, &redundancyErr) {
		envelope.Confirmed = redundancyErr.Confirmed
		envelope.Required = redundancyErr.Required
		envelope.Providers = providerReasonMap(redundancyErr.Errors)
		return http.StatusBadGateway, envelope
	}

	var deleteErr *interfaces.PartialDeleteError
	if errors.As(err, &deleteErr) {
		envelope.Providers = providerReasonMap(deleteErr.Errors)
		return http.StatusBadGateway, envelope
	}

	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound, envelope
	case errors.Is(err, interfaces.ErrProviderUnavailable), errors.Is(err, interfaces.ErrNetworkFailure):
		return http.StatusServiceUnavailable, envelope
	default:
		return http.StatusInternalServerError, envelope
	}
}

func providerReasonMap(errs map[interfaces.ProviderID]error) map[string]string {
	reasons := make(map[string]string, len(errs))
	for id, err := range errs {
		reasons[id.String()] = err.Error()
	}
	return reasons
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
