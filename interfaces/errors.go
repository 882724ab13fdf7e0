package interfaces

import (
	"fmt"
	"sort"
	"strings"
)

// RedundancyError reports a store that could not reach the required number of
// confirmed replicas. Writes that did succeed stay in place and tracked, so a
// caller can retry the store without losing them.
type RedundancyError struct {
	Required  int
	Confirmed int
	Errors    map[ProviderID]error
}

// Error implements the error interface.
func (e *RedundancyError) Error() string {
	return fmt.Sprintf("insufficient redundancy: %d of %d required replicas confirmed: %s",
		e.Confirmed, e.Required, formatProviderErrors(e.Errors))
}

// Unwrap exposes per-provider errors to errors.Is and errors.As.
func (e *RedundancyError) Unwrap() []error {
	return collectErrors(e.Errors)
}

// PartialDeleteError reports a delete that removed some replicas but not all.
// Providers in Failed still hold the object and remain tracked.
type PartialDeleteError struct {
	Deleted []ProviderID
	Failed  []ProviderID
	Errors  map[ProviderID]error
}

// Error implements the error interface.
func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("partial deletion: removed from %d providers, %d failed: %s",
		len(e.Deleted), len(e.Failed), formatProviderErrors(e.Errors))
}

// Unwrap exposes per-provider errors to errors.Is and errors.As.
func (e *PartialDeleteError) Unwrap() []error {
	return collectErrors(e.Errors)
}

// InitError aggregates per-provider initialization failures. The manager
// returns it when the primary provider could not be initialized; secondary
// failures only land on descriptors.
type InitError struct {
	Primary ProviderID
	Errors  map[ProviderID]error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("initialization failed for primary %s: %s", e.Primary, formatProviderErrors(e.Errors))
}

// Unwrap exposes per-provider errors to errors.Is and errors.As.
func (e *InitError) Unwrap() []error {
	return collectErrors(e.Errors)
}

func formatProviderErrors(m map[ProviderID]error) string {
	if len(m) == 0 {
		return "no provider errors"
	}
	parts := make([]string, 0, len(m))
	for id, err := range m {
		parts = append(parts, fmt.Sprintf("%s: %v", id, err))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func collectErrors(m map[ProviderID]error) []error {
	errs := make([]error, 0, len(m))
	for _, err := range m {
		errs = append(errs, err)
	}
	return errs
}
