package api

import (
	"time"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
	"github.com/voxalabs/storage-redundancy-engine/redundancy"
)

// StoreResponse acknowledges a write that met its redundancy threshold.
type StoreResponse struct {
	// Filename is the logical name the object was stored under.
	Filename string `json:"filename"`

	// Size is the number of plaintext bytes received.
	Size int64 `json:"size"`
}

// FileSummary is one entry in the merged cross-provider listing.
type FileSummary struct {
	// ID is the provider-native identifier of the replica the record came
	// from: an object path, a ledger transaction ID or a content hash.
	ID string `json:"id"`

	// Name is the logical filename.
	Name string `json:"name"`

	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time"`
}

// NewFileSummary converts a provider listing record to its wire form.
func NewFileSummary(rec interfaces.FileRecord) FileSummary {
	return FileSummary{
		ID:           rec.ID,
		Name:         rec.Name,
		Size:         rec.Size,
		ModifiedTime: rec.ModifiedTime,
	}
}

// FileListResponse is the body of the merged listing endpoint.
type FileListResponse struct {
	Files []FileSummary `json:"files"`
}

// Statistics aggregates the provider fleet for dashboards. It mirrors the
// manager's statistics snapshot and never reflects live provider I/O.
type Statistics struct {
	HealthyProviders   int     `json:"healthy_providers"`
	TotalProviders     int     `json:"total_providers"`
	AverageHealthScore float64 `json:"average_health_score"`

	// Redundancy is the active level name: "none", "dual" or "full".
	Redundancy string `json:"redundancy"`

	// Primary is the provider attempted first on every operation.
	Primary string `json:"primary"`
}

// NewStatistics converts a manager statistics snapshot to its wire form.
func NewStatistics(s interfaces.ProviderStatistics) Statistics {
	return Statistics{
		HealthyProviders:   s.HealthyProviders,
		TotalProviders:     s.TotalProviders,
		AverageHealthScore: s.AverageHealthScore,
		Redundancy:         s.Level.String(),
		Primary:            s.Primary.String(),
	}
}

// ProviderStatus is the wire form of one provider's static facts and its
// last observed health.
type ProviderStatus struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	// Endpoint is the host the adapter talks to.
	Endpoint string `json:"endpoint"`

	// Mutable is false for append-only backends.
	Mutable bool `json:"mutable"`

	// DelayedConfirmation is true when writes settle asynchronously.
	DelayedConfirmation bool `json:"delayed_confirmation"`

	// Configured is false when the provider's credentials were not supplied.
	Configured bool `json:"configured"`

	// Status is the connection state name: "disconnected", "connecting",
	// "connected" or "error".
	Status string `json:"status"`

	// HealthScore is an exponentially weighted success rate in [0,1].
	HealthScore float64 `json:"health_score"`

	// LastError is the reason for the "error" status, empty otherwise.
	LastError string `json:"last_error,omitempty"`

	// LastChecked is when the health monitor last recorded an outcome.
	LastChecked time.Time `json:"last_checked"`

	// LastLatencyMillis is the duration of the most recent recorded
	// operation in milliseconds.
	LastLatencyMillis int64 `json:"last_latency_ms"`
}

// NewProviderStatus converts a manager provider state to its wire form.
func NewProviderStatus(st redundancy.ProviderState) ProviderStatus {
	return ProviderStatus{
		ID:                  st.Info.ID.String(),
		DisplayName:         st.Info.DisplayName,
		Endpoint:            st.Info.Endpoint,
		Mutable:             st.Info.Mutable,
		DelayedConfirmation: st.Info.DelayedConfirmation,
		Configured:          st.Configured,
		Status:              st.Descriptor.Status.String(),
		HealthScore:         st.Descriptor.HealthScore,
		LastError:           st.Descriptor.LastError,
		LastChecked:         st.Descriptor.LastChecked,
		LastLatencyMillis:   st.Descriptor.LastLatency.Milliseconds(),
	}
}

// ProviderListResponse is the body of the provider snapshot endpoint.
type ProviderListResponse struct {
	Providers []ProviderStatus `json:"providers"`

	Primary    string `json:"primary"`
	Redundancy string `json:"redundancy"`
}

// TestReport is the result of an on-demand connection diagnostic for one
// provider. OK and Error reflect the probe outcome, not the cached health
// state.
type TestReport struct {
	Provider      string `json:"provider"`
	OK            bool   `json:"ok"`
	LatencyMillis int64  `json:"latency_ms"`
	Error         string `json:"error,omitempty"`
}

// NewTestReport converts a connection test result to its wire form.
func NewTestReport(res redundancy.TestResult) TestReport {
	return TestReport{
		Provider:      res.Provider.String(),
		OK:            res.OK,
		LatencyMillis: res.Latency.Milliseconds(),
		Error:         res.Error,
	}
}

// SettingResponse acknowledges a primary or redundancy level change and
// reports the resulting routing configuration.
type SettingResponse struct {
	Primary    string `json:"primary"`
	Redundancy string `json:"redundancy"`
}

// ErrorResponse is the JSON error envelope. When a store or delete failed
// against some providers, Providers carries the per-provider reasons so a
// caller can tell a dead backend from a rejected request.
type ErrorResponse struct {
	Error string `json:"error"`

	// Confirmed and Required report replica counts for redundancy
	// shortfalls.
	Confirmed int `json:"confirmed,omitempty"`
	Required  int `json:"required,omitempty"`

	// Providers maps provider IDs to failure reasons.
	Providers map[string]string `json:"providers,omitempty"`
}
