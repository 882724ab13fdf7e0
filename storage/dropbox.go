package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

const (
	defaultDropboxAPIEndpoint     = "https://api.dropboxapi.com"
	defaultDropboxContentEndpoint = "https://content.dropboxapi.com"
)

// DropboxProvider stores envelopes as files in a Dropbox app folder. RPC
// calls go to the api endpoint, uploads and downloads to the content
// endpoint, mirroring how Dropbox splits its API.
type DropboxProvider struct {
	token           string
	root            string
	apiEndpoint     string
	contentEndpoint string

	client *http.Client
	cache  *infoCache
	log    *slog.Logger

	// Space usage observed at Initialize, advanced optimistically on
	// writes. Zero quota means usage is unknown and writes are not gated.
	quotaMu    sync.Mutex
	usedBytes  int64
	quotaBytes int64
}

// NewDropboxProvider creates a Dropbox adapter rooted at the given folder.
// Empty endpoints select the public Dropbox endpoints.
func NewDropboxProvider(token, root, apiEndpoint, contentEndpoint string, log *slog.Logger) *DropboxProvider {
	if apiEndpoint == "" {
		apiEndpoint = defaultDropboxAPIEndpoint
	}
	if contentEndpoint == "" {
		contentEndpoint = defaultDropboxContentEndpoint
	}
	root = strings.TrimSuffix(root, "/")
	if root != "" && !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return &DropboxProvider{
		token:           token,
		root:            root,
		apiEndpoint:     strings.TrimSuffix(apiEndpoint, "/"),
		contentEndpoint: strings.TrimSuffix(contentEndpoint, "/"),
		client:          &http.Client{Timeout: 30 * time.Second},
		cache:           newInfoCache(),
		log:             log.With(slog.String("provider", string(interfaces.ProviderDropbox))),
	}
}

// ID implements interfaces.StorageProvider.
func (p *DropboxProvider) ID() interfaces.ProviderID {
	return interfaces.ProviderDropbox
}

// Describe implements interfaces.StorageProvider.
func (p *DropboxProvider) Describe() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{
		ID:          interfaces.ProviderDropbox,
		DisplayName: "Dropbox",
		Endpoint:    p.apiEndpoint,
		Mutable:     true,
	}
}

// IsConfigured implements interfaces.StorageProvider.
func (p *DropboxProvider) IsConfigured() bool {
	return p.token != ""
}

// Initialize verifies the token and records the account's space usage so
// later writes can fail fast when the quota would be exceeded.
func (p *DropboxProvider) Initialize(ctx context.Context) error {
	if !p.IsConfigured() {
		return fmt.Errorf("%w: dropbox access token missing", interfaces.ErrNotConfigured)
	}

	var usage struct {
		Used       int64 `json:"used"`
		Allocation struct {
			Allocated int64 `json:"allocated"`
		} `json:"allocation"`
	}
	if err := p.rpc(ctx, "/2/users/get_space_usage", nil, &usage); err != nil {
		return err
	}

	p.quotaMu.Lock()
	p.usedBytes = usage.Used
	p.quotaBytes = usage.Allocation.Allocated
	p.quotaMu.Unlock()

	p.log.Debug("Dropbox account reachable",
		slog.Int64("used_bytes", usage.Used),
		slog.Int64("quota_bytes", usage.Allocation.Allocated))
	return nil
}

// StoreData implements interfaces.StorageProvider. Uploads overwrite any
// existing revision of the path.
func (p *DropboxProvider) StoreData(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error {
	if err := p.checkQuota(int64(len(blob.Bytes))); err != nil {
		return err
	}

	start := time.Now()
	arg, err := headerSafeJSON(map[string]any{
		"path": p.filePath(key.Filename),
		"mode": "overwrite",
		"mute": true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode upload argument: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.contentEndpoint+"/2/files/upload", bytes.NewReader(blob.Bytes))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Dropbox-API-Arg", arg)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return wrapTransport(ctx, "dropbox upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dropboxError(resp)
	}

	var meta dropboxEntry
	record := interfaces.FileRecord{
		ID:           p.filePath(key.Filename),
		Name:         key.Filename,
		Size:         int64(len(blob.Bytes)),
		ModifiedTime: time.Now().UTC(),
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err == nil {
		record = meta.record(key.Filename)
	}
	p.cache.put(record)
	p.advanceUsage(int64(len(blob.Bytes)))

	p.log.Debug("Stored file in Dropbox",
		slog.String("path", p.filePath(key.Filename)),
		slog.Int("size", len(blob.Bytes)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// RetrieveData implements interfaces.StorageProvider.
func (p *DropboxProvider) RetrieveData(ctx context.Context, key interfaces.StorageKey) (interfaces.EncryptedBlob, error) {
	start := time.Now()
	arg, err := headerSafeJSON(map[string]any{"path": p.filePath(key.Filename)})
	if err != nil {
		return interfaces.EncryptedBlob{}, fmt.Errorf("failed to encode download argument: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.contentEndpoint+"/2/files/download", nil)
	if err != nil {
		return interfaces.EncryptedBlob{}, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Dropbox-API-Arg", arg)

	resp, err := p.client.Do(req)
	if err != nil {
		return interfaces.EncryptedBlob{}, wrapTransport(ctx, "dropbox download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return interfaces.EncryptedBlob{}, dropboxError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return interfaces.EncryptedBlob{}, wrapTransport(ctx, "dropbox download", err)
	}

	p.log.Debug("Retrieved file from Dropbox",
		slog.String("path", p.filePath(key.Filename)),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return interfaces.EncryptedBlob{Bytes: data}, nil
}

// DeleteData implements interfaces.StorageProvider.
func (p *DropboxProvider) DeleteData(ctx context.Context, key interfaces.StorageKey) error {
	args := map[string]any{"path": p.filePath(key.Filename)}
	if err := p.rpc(ctx, "/2/files/delete_v2", args, nil); err != nil {
		return err
	}
	p.cache.drop(key.Filename)
	p.log.Debug("Deleted file from Dropbox", slog.String("path", p.filePath(key.Filename)))
	return nil
}

// ListFiles implements interfaces.StorageProvider. A missing root folder is
// an empty provider, not an error.
func (p *DropboxProvider) ListFiles(ctx context.Context) ([]interfaces.FileRecord, error) {
	var page struct {
		Entries []dropboxEntry `json:"entries"`
		Cursor  string         `json:"cursor"`
		HasMore bool           `json:"has_more"`
	}

	err := p.rpc(ctx, "/2/files/list_folder", map[string]any{"path": p.root}, &page)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var records []interfaces.FileRecord
	for {
		for _, entry := range page.Entries {
			if entry.Tag != "file" {
				continue
			}
			record := entry.record(entry.Name)
			records = append(records, record)
			p.cache.put(record)
		}
		if !page.HasMore {
			return records, nil
		}

		cursor := page.Cursor
		page.Entries = nil
		if err := p.rpc(ctx, "/2/files/list_folder/continue", map[string]any{"cursor": cursor}, &page); err != nil {
			return nil, err
		}
	}
}

// GetFileInfo implements interfaces.StorageProvider.
func (p *DropboxProvider) GetFileInfo(key interfaces.StorageKey) (interfaces.FileRecord, bool) {
	return p.cache.get(key.Filename)
}

// rpc performs a JSON call against the api endpoint and decodes the reply
// into out when non-nil.
func (p *DropboxProvider) rpc(ctx context.Context, path string, args, out any) error {
	var body io.Reader
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("failed to encode %s argument: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiEndpoint+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	if args != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return wrapTransport(ctx, "dropbox "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dropboxError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (p *DropboxProvider) filePath(filename string) string {
	return p.root + "/" + filename
}

func (p *DropboxProvider) checkQuota(size int64) error {
	p.quotaMu.Lock()
	defer p.quotaMu.Unlock()
	if p.quotaBytes > 0 && p.usedBytes+size > p.quotaBytes {
		return fmt.Errorf("%w: dropbox quota exceeded (%d of %d bytes used)",
			interfaces.ErrProviderUnavailable, p.usedBytes, p.quotaBytes)
	}
	return nil
}

func (p *DropboxProvider) advanceUsage(size int64) {
	p.quotaMu.Lock()
	p.usedBytes += size
	p.quotaMu.Unlock()
}

// dropboxError maps an API failure onto the provider error contract.
// Dropbox reports path problems as 409 with a machine-readable summary, so
// the summary decides between not-found and a real conflict.
func dropboxError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	var apiErr struct {
		Summary string `json:"error_summary"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Summary != "" {
		switch {
		case strings.Contains(apiErr.Summary, "not_found"):
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, apiErr.Summary)
		case strings.Contains(apiErr.Summary, "insufficient_space"):
			return fmt.Errorf("%w: %s", interfaces.ErrProviderUnavailable, apiErr.Summary)
		case strings.Contains(apiErr.Summary, "invalid_access_token"),
			strings.Contains(apiErr.Summary, "expired_access_token"):
			return fmt.Errorf("%w: %s", interfaces.ErrNotConfigured, apiErr.Summary)
		default:
			return fmt.Errorf("%w: %s", classifyStatus(resp.StatusCode), apiErr.Summary)
		}
	}

	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return fmt.Errorf("%w: unexpected status %d", classifyStatus(resp.StatusCode), resp.StatusCode)
	}
	return fmt.Errorf("%w: unexpected status %d: %s", classifyStatus(resp.StatusCode), resp.StatusCode, detail)
}

// headerSafeJSON encodes v for the Dropbox-API-Arg header, which only
// tolerates printable ASCII. Anything else is escaped to \uXXXX.
func headerSafeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range string(raw) {
		if r >= 0x20 && r <= 0x7e {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "\\u%04x", r)
		}
	}
	return b.String(), nil
}

// dropboxEntry is the subset of file metadata the API returns.
type dropboxEntry struct {
	Tag            string    `json:".tag"`
	Name           string    `json:"name"`
	PathLower      string    `json:"path_lower"`
	Size           int64     `json:"size"`
	ServerModified time.Time `json:"server_modified"`
}

func (e dropboxEntry) record(name string) interfaces.FileRecord {
	return interfaces.FileRecord{
		ID:           e.PathLower,
		Name:         name,
		Size:         e.Size,
		ModifiedTime: e.ServerModified,
	}
}
