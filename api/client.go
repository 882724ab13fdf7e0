package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Client is a typed HTTP client for the storage engine API, used by the
// command line client and by handler tests.
type Client struct {
	// ServerAddr is the base URL of the engine's HTTP server, without a
	// trailing slash.
	ServerAddr string

	// HTTPClient overrides the client used for requests.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Store uploads plaintext under filename. The server encrypts the payload
// and fans the write out; the call succeeds only when the configured
// redundancy threshold was met.
func (c *Client) Store(ctx context.Context, filename string, plaintext []byte) (StoreResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/files/%s", c.ServerAddr, escapeFilename(filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(plaintext))
	if err != nil {
		return StoreResponse{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return StoreResponse{}, fmt.Errorf("could not request store endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return StoreResponse{}, c.apiError(resp)
	}

	var parsed StoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return StoreResponse{}, fmt.Errorf("could not parse store response: %w", err)
	}
	return parsed, nil
}

// Retrieve downloads and returns the plaintext stored under filename. With
// raced set, the server fetches from all likely holders concurrently and
// returns the first replica that decrypts.
func (c *Client) Retrieve(ctx context.Context, filename string, raced bool) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/v1/files/%s", c.ServerAddr, escapeFilename(filename))
	if raced {
		endpoint += "?raced=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request retrieve endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read file body: %w", err)
	}
	return body, nil
}

// Delete removes the file from every provider holding a replica.
func (c *Client) Delete(ctx context.Context, filename string) error {
	endpoint := fmt.Sprintf("%s/api/v1/files/%s", c.ServerAddr, escapeFilename(filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("could not request delete endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return c.apiError(resp)
	}
	return nil
}

// ListFiles returns the merged cross-provider listing.
func (c *Client) ListFiles(ctx context.Context) (FileListResponse, error) {
	var parsed FileListResponse
	err := c.getJSON(ctx, http.MethodGet, "/api/v1/files", &parsed)
	return parsed, err
}

// Statistics returns the aggregate fleet statistics.
func (c *Client) Statistics(ctx context.Context) (Statistics, error) {
	var parsed Statistics
	err := c.getJSON(ctx, http.MethodGet, "/api/v1/statistics", &parsed)
	return parsed, err
}

// Providers returns a snapshot of every registered provider.
func (c *Client) Providers(ctx context.Context) (ProviderListResponse, error) {
	var parsed ProviderListResponse
	err := c.getJSON(ctx, http.MethodGet, "/api/v1/providers", &parsed)
	return parsed, err
}

// TestProvider runs an on-demand connection diagnostic against one provider.
// A failed probe is reported in the TestReport, not as an error.
func (c *Client) TestProvider(ctx context.Context, provider string) (TestReport, error) {
	var parsed TestReport
	path := fmt.Sprintf("/api/v1/providers/%s/test", url.PathEscape(provider))
	err := c.getJSON(ctx, http.MethodPost, path, &parsed)
	return parsed, err
}

// SetPrimary makes the named provider the first attempted on every
// operation.
func (c *Client) SetPrimary(ctx context.Context, provider string) (SettingResponse, error) {
	var parsed SettingResponse
	path := fmt.Sprintf("/api/v1/primary/%s", url.PathEscape(provider))
	err := c.getJSON(ctx, http.MethodPut, path, &parsed)
	return parsed, err
}

// SetRedundancy switches the level applied to subsequent stores: "none",
// "dual" or "full".
func (c *Client) SetRedundancy(ctx context.Context, level string) (SettingResponse, error) {
	var parsed SettingResponse
	path := fmt.Sprintf("/api/v1/redundancy/%s", url.PathEscape(level))
	err := c.getJSON(ctx, http.MethodPut, path, &parsed)
	return parsed, err
}

// getJSON issues a bodyless request and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.ServerAddr+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// apiError turns a non-success response into an error, preferring the JSON
// envelope's message and per-provider reasons over the raw body.
func (c *Client) apiError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var envelope ErrorResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		if len(envelope.Providers) > 0 {
			return fmt.Errorf("server returned status %d: %s (%s)", resp.StatusCode, envelope.Error, providerReasons(envelope.Providers))
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, envelope.Error)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func providerReasons(reasons map[string]string) string {
	ids := make([]string, 0, len(reasons))
	for id := range reasons {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %s", id, reasons[id]))
	}
	return strings.Join(parts, "; ")
}

// escapeFilename escapes each segment of a logical filename, keeping
// interior slashes as path separators.
func escapeFilename(filename string) string {
	segments := strings.Split(filename, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
