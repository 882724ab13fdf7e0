package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// ProviderFactory creates storage providers from location URIs. Providers
// that persist address mappings share the factory's database handle.
type ProviderFactory struct {
	log *slog.Logger
	db  *sql.DB
}

// NewProviderFactory creates a factory. The database may be nil when no
// ledger or IPFS providers will be built.
func NewProviderFactory(log *slog.Logger, db *sql.DB) *ProviderFactory {
	return &ProviderFactory{log: log, db: db}
}

// ProviderFor creates a storage provider from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - firebase:// - Firebase Storage bucket
//   - dropbox://  - Dropbox app folder
//   - arweave://  - permanent ledger via a gateway node
//   - ipfs://     - IPFS node, optionally with a remote pinning service
//
// Missing credentials produce an unconfigured provider rather than an
// error; only malformed URIs and unreadable keyfiles fail here.
func (f *ProviderFactory) ProviderFor(locationURI string) (interfaces.StorageProvider, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUnsupportedLocation, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "firebase":
		return f.createFirebaseProvider(u)
	case "dropbox":
		return f.createDropboxProvider(u)
	case "arweave":
		return f.createArweaveProvider(u)
	case "ipfs":
		return f.createIPFSProvider(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrUnsupportedLocation, u.Scheme)
	}
}

// ProvidersFor creates one provider per URI, preserving order. Any invalid
// URI fails the whole call: a half-configured provider set should stop
// startup, not silently shrink redundancy.
func (f *ProviderFactory) ProvidersFor(locationURIs []string) ([]interfaces.StorageProvider, error) {
	providers := make([]interfaces.StorageProvider, 0, len(locationURIs))
	seen := make(map[interfaces.ProviderID]bool)

	for _, uri := range locationURIs {
		provider, err := f.ProviderFor(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid provider location %q: %w", uri, err)
		}
		if seen[provider.ID()] {
			return nil, fmt.Errorf("duplicate provider %s in location list", provider.ID())
		}
		seen[provider.ID()] = true
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no storage providers configured")
	}
	return providers, nil
}

// createFirebaseProvider builds a Firebase Storage provider.
// URI format: firebase://TOKEN@bucket-name/prefix?endpoint=http://emulator:9199
func (f *ProviderFactory) createFirebaseProvider(u *url.URL) (interfaces.StorageProvider, error) {
	f.log.Debug("Creating Firebase provider", slog.String("bucket", u.Hostname()))

	bucket := u.Hostname()
	if bucket == "" {
		return nil, fmt.Errorf("%w: firebase URI is missing a bucket", interfaces.ErrUnsupportedLocation)
	}

	var token string
	if u.User != nil {
		token = u.User.Username()
	}
	prefix := strings.Trim(u.Path, "/")
	endpoint := u.Query().Get("endpoint")

	return NewFirebaseProvider(bucket, token, prefix, endpoint, f.log), nil
}

// createDropboxProvider builds a Dropbox provider.
// URI format: dropbox://ACCESS_TOKEN@/folder?api-endpoint=&content-endpoint=
func (f *ProviderFactory) createDropboxProvider(u *url.URL) (interfaces.StorageProvider, error) {
	f.log.Debug("Creating Dropbox provider", slog.String("root", u.Path))

	var token string
	if u.User != nil {
		token = u.User.Username()
	}
	query := u.Query()

	return NewDropboxProvider(token, u.Path,
		query.Get("api-endpoint"), query.Get("content-endpoint"), f.log), nil
}

// createArweaveProvider builds a permanent ledger provider.
// URI format: arweave://gateway-host/?wallet=/path/to/keyfile.json&min-confirmations=2&poll=10s&protocol=https
func (f *ProviderFactory) createArweaveProvider(u *url.URL) (interfaces.StorageProvider, error) {
	f.log.Debug("Creating Arweave provider", slog.String("gateway", u.Host))

	if u.Host == "" {
		return nil, fmt.Errorf("%w: arweave URI is missing a gateway host", interfaces.ErrUnsupportedLocation)
	}
	if f.db == nil {
		return nil, fmt.Errorf("arweave provider requires the address database")
	}

	query := u.Query()
	protocol := query.Get("protocol")
	if protocol == "" {
		protocol = "https"
	}
	endpoint := protocol + "://" + u.Host

	var minConfirmations int64
	if raw := query.Get("min-confirmations"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid min-confirmations %q: %w", raw, err)
		}
		minConfirmations = parsed
	}
	var pollInterval time.Duration
	if raw := query.Get("poll"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid poll interval %q: %w", raw, err)
		}
		pollInterval = parsed
	}

	// A present but unreadable keyfile is a hard error. Only a missing
	// wallet parameter builds an unconfigured provider.
	var wallet *LedgerWallet
	var gateway LedgerGateway
	if path := query.Get("wallet"); path != "" {
		loaded, err := NewLedgerWalletFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger wallet: %w", err)
		}
		wallet = loaded
		gateway = NewHTTPGateway(endpoint, f.log)
	}

	keys, err := NewKeyMap(f.db, interfaces.ProviderArweave)
	if err != nil {
		return nil, err
	}
	return NewArweaveProvider(wallet, gateway, keys, minConfirmations, pollInterval, endpoint, f.log), nil
}

// createIPFSProvider builds an IPFS provider.
// URI format: ipfs://host:port/?timeout=2m&pinning=https://ipfs.infura.io:5001&project-id=ID&project-secret=SECRET
func (f *ProviderFactory) createIPFSProvider(u *url.URL) (interfaces.StorageProvider, error) {
	f.log.Debug("Creating IPFS provider", slog.String("node", u.Host))

	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: ipfs URI is missing a node host", interfaces.ErrUnsupportedLocation)
	}
	if f.db == nil {
		return nil, fmt.Errorf("ipfs provider requires the address database")
	}

	port := u.Port()
	if port == "" {
		port = "5001"
	}
	endpoint := u.Hostname() + ":" + port

	query := u.Query()
	timeout := 2 * time.Minute
	if raw := query.Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
		timeout = parsed
	}

	node := shell.NewShell(endpoint)
	node.SetTimeout(timeout)

	var pinning *PinningClient
	if pinURL := query.Get("pinning"); pinURL != "" {
		pinning = NewPinningClient(pinURL, query.Get("project-id"), query.Get("project-secret"), f.log)
	}

	keys, err := NewKeyMap(f.db, interfaces.ProviderIPFS)
	if err != nil {
		return nil, err
	}
	return NewIPFSProvider(node, pinning, keys, endpoint, f.log), nil
}
