package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// classifyStatus maps an HTTP response code onto the provider error
// contract. Not-found stays distinct from unavailability so callers can
// tell a missing file apart from a backend outage.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return interfaces.ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return interfaces.ErrNotConfigured
	case code == http.StatusPaymentRequired,
		code == http.StatusRequestEntityTooLarge,
		code == http.StatusTooManyRequests,
		code >= 500:
		return interfaces.ErrProviderUnavailable
	default:
		return interfaces.ErrNetworkFailure
	}
}

// statusError builds an error for a non-2xx response, capturing a bounded
// slice of the body for diagnostics.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return fmt.Errorf("%w: unexpected status %d", classifyStatus(resp.StatusCode), resp.StatusCode)
	}
	return fmt.Errorf("%w: unexpected status %d: %s", classifyStatus(resp.StatusCode), resp.StatusCode, detail)
}

// wrapTransport normalizes a transport-level failure. Context cancellation
// and deadline errors pass through untouched so fan-out timeouts stay
// recognizable upstream.
func wrapTransport(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", interfaces.ErrNetworkFailure, op, err)
}
