package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

const defaultFirebaseEndpoint = "https://firebasestorage.googleapis.com"

// FirebaseProvider stores envelopes as objects in a Firebase Storage bucket
// through the REST API. Objects live under an optional prefix so one bucket
// can be shared with other applications.
type FirebaseProvider struct {
	bucket   string
	token    string
	prefix   string
	endpoint string

	client *http.Client
	cache  *infoCache
	log    *slog.Logger
}

// NewFirebaseProvider creates a Firebase Storage adapter. An empty endpoint
// selects the public Google endpoint; tests and emulators override it.
func NewFirebaseProvider(bucket, token, prefix, endpoint string, log *slog.Logger) *FirebaseProvider {
	if endpoint == "" {
		endpoint = defaultFirebaseEndpoint
	}
	return &FirebaseProvider{
		bucket:   bucket,
		token:    token,
		prefix:   strings.Trim(prefix, "/"),
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
		cache:    newInfoCache(),
		log:      log.With(slog.String("provider", string(interfaces.ProviderFirebase))),
	}
}

// ID implements interfaces.StorageProvider.
func (p *FirebaseProvider) ID() interfaces.ProviderID {
	return interfaces.ProviderFirebase
}

// Describe implements interfaces.StorageProvider.
func (p *FirebaseProvider) Describe() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{
		ID:          interfaces.ProviderFirebase,
		DisplayName: "Firebase Storage",
		Endpoint:    p.endpoint + "/v0/b/" + p.bucket,
		Mutable:     true,
	}
}

// IsConfigured implements interfaces.StorageProvider.
func (p *FirebaseProvider) IsConfigured() bool {
	return p.bucket != "" && p.token != ""
}

// Initialize verifies the bucket is reachable with the configured token by
// issuing a single-object list request.
func (p *FirebaseProvider) Initialize(ctx context.Context) error {
	if !p.IsConfigured() {
		return fmt.Errorf("%w: firebase bucket or token missing", interfaces.ErrNotConfigured)
	}

	probeURL := fmt.Sprintf("%s/v0/b/%s/o?maxResults=1", p.endpoint, p.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return wrapTransport(ctx, "firebase probe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	p.log.Debug("Firebase bucket reachable", slog.String("bucket", p.bucket))
	return nil
}

// StoreData implements interfaces.StorageProvider.
func (p *FirebaseProvider) StoreData(ctx context.Context, blob interfaces.EncryptedBlob, key interfaces.StorageKey) error {
	start := time.Now()
	object := p.objectName(key.Filename)

	uploadURL := fmt.Sprintf("%s/v0/b/%s/o?uploadType=media&name=%s",
		p.endpoint, p.bucket, url.QueryEscape(object))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(blob.Bytes))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return wrapTransport(ctx, "firebase upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	record := interfaces.FileRecord{
		ID:           object,
		Name:         key.Filename,
		Size:         int64(len(blob.Bytes)),
		ModifiedTime: time.Now().UTC(),
	}
	var meta firebaseObject
	if err := json.NewDecoder(resp.Body).Decode(&meta); err == nil {
		record = meta.record(key.Filename)
	}
	p.cache.put(record)

	p.log.Debug("Stored object in Firebase",
		slog.String("object", object),
		slog.Int("size", len(blob.Bytes)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// RetrieveData implements interfaces.StorageProvider.
func (p *FirebaseProvider) RetrieveData(ctx context.Context, key interfaces.StorageKey) (interfaces.EncryptedBlob, error) {
	start := time.Now()
	object := p.objectName(key.Filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.objectURL(object)+"?alt=media", nil)
	if err != nil {
		return interfaces.EncryptedBlob{}, fmt.Errorf("failed to create download request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return interfaces.EncryptedBlob{}, wrapTransport(ctx, "firebase download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return interfaces.EncryptedBlob{}, statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return interfaces.EncryptedBlob{}, wrapTransport(ctx, "firebase download", err)
	}

	p.log.Debug("Retrieved object from Firebase",
		slog.String("object", object),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return interfaces.EncryptedBlob{Bytes: data}, nil
}

// DeleteData implements interfaces.StorageProvider.
func (p *FirebaseProvider) DeleteData(ctx context.Context, key interfaces.StorageKey) error {
	object := p.objectName(key.Filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.objectURL(object), nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return wrapTransport(ctx, "firebase delete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}

	p.cache.drop(key.Filename)
	p.log.Debug("Deleted object from Firebase", slog.String("object", object))
	return nil
}

// ListFiles implements interfaces.StorageProvider. Results are paginated by
// the backend; all pages are drained.
func (p *FirebaseProvider) ListFiles(ctx context.Context) ([]interfaces.FileRecord, error) {
	var records []interfaces.FileRecord
	pageToken := ""

	for {
		listURL := fmt.Sprintf("%s/v0/b/%s/o?fields=items(name,size,updated),nextPageToken", p.endpoint, p.bucket)
		if p.prefix != "" {
			listURL += "&prefix=" + url.QueryEscape(p.prefix+"/")
		}
		if pageToken != "" {
			listURL += "&pageToken=" + url.QueryEscape(pageToken)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create list request: %w", err)
		}
		p.authorize(req)

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, wrapTransport(ctx, "firebase list", err)
		}

		var page struct {
			Items         []firebaseObject `json:"items"`
			NextPageToken string           `json:"nextPageToken"`
		}
		if resp.StatusCode != http.StatusOK {
			err := statusError(resp)
			resp.Body.Close()
			return nil, err
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode list response: %w", err)
		}
		resp.Body.Close()

		for _, item := range page.Items {
			name := item.Name
			if p.prefix != "" {
				if !strings.HasPrefix(name, p.prefix+"/") {
					continue
				}
				name = strings.TrimPrefix(name, p.prefix+"/")
			}
			record := item.record(name)
			records = append(records, record)
			p.cache.put(record)
		}

		if page.NextPageToken == "" {
			return records, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetFileInfo implements interfaces.StorageProvider.
func (p *FirebaseProvider) GetFileInfo(key interfaces.StorageKey) (interfaces.FileRecord, bool) {
	return p.cache.get(key.Filename)
}

func (p *FirebaseProvider) objectName(filename string) string {
	if p.prefix == "" {
		return filename
	}
	return p.prefix + "/" + filename
}

func (p *FirebaseProvider) objectURL(object string) string {
	return fmt.Sprintf("%s/v0/b/%s/o/%s", p.endpoint, p.bucket, url.PathEscape(object))
}

func (p *FirebaseProvider) authorize(req *http.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "Firebase "+p.token)
	}
}

// firebaseObject is the subset of object metadata the backend returns.
// Sizes come over the wire as decimal strings.
type firebaseObject struct {
	Name    string `json:"name"`
	Size    string `json:"size"`
	Updated string `json:"updated"`
}

func (o firebaseObject) record(name string) interfaces.FileRecord {
	size, _ := strconv.ParseInt(o.Size, 10, 64)
	modified, _ := time.Parse(time.RFC3339, o.Updated)
	return interfaces.FileRecord{
		ID:           o.Name,
		Name:         name,
		Size:         size,
		ModifiedTime: modified,
	}
}
