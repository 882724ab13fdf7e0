package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
	"github.com/voxalabs/storage-redundancy-engine/redundancy"
)

// Environment variables that override file values. Addresses and secrets
// tend to differ per deployment while the rest of the file is shared, so
// only those are overridable.
const (
	EnvVaultAddr = "VAULT_ADDR"
	EnvMasterKey = "STORAGE_ENGINE_MASTER_KEY"
	EnvIndexPath = "STORAGE_ENGINE_INDEX_PATH"
)

const (
	defaultIndexPath   = "/var/lib/storage-engine/index.db"
	defaultActiveKeyID = "primary"
	defaultRedundancy  = "dual"
	defaultTokenEnv    = "VAULT_TOKEN"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "20m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the engine configuration loaded from YAML.
type Config struct {
	// Providers lists backend location URIs in registration order. The
	// URI scheme names the provider; credentials ride in the userinfo and
	// query parts and may be vault:PATH#FIELD references.
	Providers []string `yaml:"providers"`

	// Primary names the provider attempted first on every operation.
	// Empty selects the first listed provider.
	Primary string `yaml:"primary"`

	// Redundancy is the starting level: "none", "dual" or "full".
	Redundancy string `yaml:"redundancy"`

	Encryption EncryptionConfig `yaml:"encryption"`
	Index      IndexConfig      `yaml:"index"`
	Health     HealthConfig     `yaml:"health"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Vault      VaultConfig      `yaml:"vault"`

	// AllowDegradedStart lets the engine come up even when the primary
	// provider fails to initialize, leaving recovery to the health monitor
	// and a later primary switch. Secondary failures never block startup.
	AllowDegradedStart bool `yaml:"allow_degraded_start"`
}

// EncryptionConfig selects the key material that seals every stored blob.
type EncryptionConfig struct {
	// MasterKey is the hex-encoded master secret, or a vault:PATH#FIELD
	// reference resolved by ResolveSecrets.
	MasterKey string `yaml:"master_key"`

	// ActiveKeyID names the derived key that seals new writes. Old key
	// IDs remain readable through the replica index.
	ActiveKeyID string `yaml:"active_key_id"`
}

// IndexConfig locates the sqlite replica index.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// HealthConfig tunes the background health monitor.
type HealthConfig struct {
	Interval     Duration `yaml:"interval"`
	ProbeTimeout Duration `yaml:"probe_timeout"`
}

// TimeoutConfig bounds a single provider attempt per backend class. Unset
// classes keep their defaults.
type TimeoutConfig struct {
	Firebase Duration `yaml:"firebase"`
	Dropbox  Duration `yaml:"dropbox"`
	Arweave  Duration `yaml:"arweave"`
	IPFS     Duration `yaml:"ipfs"`
}

// VaultConfig locates the Vault server used for secret references.
type VaultConfig struct {
	// Address is the Vault server URL. Empty falls back to the standard
	// VAULT_ADDR environment variable.
	Address string `yaml:"address"`

	// TokenEnv names the environment variable holding the Vault token.
	// Defaults to VAULT_TOKEN.
	TokenEnv string `yaml:"token_env"`
}

// Load reads and validates the configuration at path, with defaults and
// environment overrides applied before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Redundancy == "" {
		c.Redundancy = defaultRedundancy
	}
	if c.Encryption.ActiveKeyID == "" {
		c.Encryption.ActiveKeyID = defaultActiveKeyID
	}
	if c.Index.Path == "" {
		c.Index.Path = defaultIndexPath
	}
	if c.Vault.TokenEnv == "" {
		c.Vault.TokenEnv = defaultTokenEnv
	}
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv(EnvVaultAddr); addr != "" {
		c.Vault.Address = addr
	}
	if key := os.Getenv(EnvMasterKey); key != "" {
		c.Encryption.MasterKey = key
	}
	if path := os.Getenv(EnvIndexPath); path != "" {
		c.Index.Path = path
	}
}

// Validate rejects configurations the engine could not start from. Secret
// references pass through unresolved; only structure is checked here.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("no providers configured")
	}

	schemes := make(map[string]bool, len(c.Providers))
	for _, uri := range c.Providers {
		u, err := url.Parse(uri)
		if err != nil {
			return fmt.Errorf("invalid provider location %q: %w", uri, err)
		}
		scheme := strings.ToLower(u.Scheme)
		if _, err := interfaces.ParseProviderID(scheme); err != nil {
			return fmt.Errorf("invalid provider location %q: unsupported scheme %q", uri, u.Scheme)
		}
		if schemes[scheme] {
			return fmt.Errorf("duplicate provider %q in location list", scheme)
		}
		schemes[scheme] = true
	}

	if c.Primary != "" {
		id, err := interfaces.ParseProviderID(c.Primary)
		if err != nil {
			return fmt.Errorf("invalid primary: %w", err)
		}
		if !schemes[id.String()] {
			return fmt.Errorf("primary %q is not among the configured providers", c.Primary)
		}
	}

	if _, err := interfaces.ParseRedundancyLevel(c.Redundancy); err != nil {
		return fmt.Errorf("invalid redundancy: %w", err)
	}

	if c.Encryption.MasterKey == "" {
		return fmt.Errorf("encryption master key is required, set it in the config or %s", EnvMasterKey)
	}
	return nil
}

// Level returns the parsed redundancy level. Call after Validate.
func (c *Config) Level() (interfaces.RedundancyLevel, error) {
	return interfaces.ParseRedundancyLevel(c.Redundancy)
}

// PrimaryID returns the parsed primary provider, or empty when the first
// listed provider should be used.
func (c *Config) PrimaryID() (interfaces.ProviderID, error) {
	if c.Primary == "" {
		return "", nil
	}
	return interfaces.ParseProviderID(c.Primary)
}

// EngineTimeouts maps the configured attempt budgets onto the manager's
// timeout set. Zero fields fall back to the per-class defaults there.
func (c *Config) EngineTimeouts() redundancy.Timeouts {
	return redundancy.Timeouts{
		Firebase: c.Timeouts.Firebase.Std(),
		Dropbox:  c.Timeouts.Dropbox.Std(),
		Arweave:  c.Timeouts.Arweave.Std(),
		IPFS:     c.Timeouts.IPFS.Std(),
	}
}
