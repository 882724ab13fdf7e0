package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PinningClient pins content on a remote pinning service speaking the IPFS
// HTTP RPC API with project-credential basic auth. Without remote pins,
// content only survives while the local node keeps it.
type PinningClient struct {
	baseURL       string
	projectID     string
	projectSecret string
	client        *http.Client
	log           *slog.Logger
}

// NewPinningClient creates a client for a remote pinning endpoint.
func NewPinningClient(baseURL, projectID, projectSecret string, log *slog.Logger) *PinningClient {
	return &PinningClient{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		projectID:     projectID,
		projectSecret: projectSecret,
		client:        &http.Client{Timeout: 60 * time.Second},
		log:           log,
	}
}

// Ping verifies the service answers with the configured credentials.
func (c *PinningClient) Ping(ctx context.Context) error {
	resp, err := c.post(ctx, "/api/v0/version", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Pin asks the service to pin a CID.
func (c *PinningClient) Pin(ctx context.Context, cid string) error {
	resp, err := c.post(ctx, "/api/v0/pin/add", url.Values{"arg": {cid}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	c.log.Debug("Pinned content remotely", slog.String("cid", cid))
	return nil
}

// Unpin removes a remote pin. A CID the service does not hold is fine.
func (c *PinningClient) Unpin(ctx context.Context, cid string) error {
	resp, err := c.post(ctx, "/api/v0/pin/rm", url.Values{"arg": {cid}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	err = statusError(resp)
	if strings.Contains(err.Error(), "not pinned") {
		return nil
	}
	return err
}

func (c *PinningClient) post(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pinning request: %w", err)
	}
	req.SetBasicAuth(c.projectID, c.projectSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, wrapTransport(ctx, "pinning service", err)
	}
	return resp, nil
}
