package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/vault/api"
)

// secretRefPrefix marks a value that must be read from Vault instead of
// being used literally. The full form is vault:PATH#FIELD, where PATH is
// the logical read path (including the KV v2 data/ element) and FIELD the
// key inside the secret.
const secretRefPrefix = "vault:"

// secretRefPattern matches references embedded anywhere in a value, so
// credentials inside provider URIs resolve in place.
var secretRefPattern = regexp.MustCompile(`vault:[A-Za-z0-9_./-]+#[A-Za-z0-9_.-]+`)

// ResolveSecrets replaces every vault:PATH#FIELD reference in the provider
// locations and the master key with the value read from Vault. A
// configuration without references resolves without a Vault client, so
// engines that keep credentials inline never need a Vault server.
func ResolveSecrets(ctx context.Context, cfg *Config, log *slog.Logger) error {
	if !hasSecretRefs(cfg) {
		return nil
	}

	client, err := newVaultClient(cfg.Vault)
	if err != nil {
		return err
	}
	resolver := &secretResolver{client: client, log: log, cache: make(map[string]map[string]any)}

	for i, uri := range cfg.Providers {
		resolved, err := resolver.resolveString(ctx, uri)
		if err != nil {
			return fmt.Errorf("could not resolve secrets in provider location: %w", err)
		}
		cfg.Providers[i] = resolved
	}

	resolved, err := resolver.resolveString(ctx, cfg.Encryption.MasterKey)
	if err != nil {
		return fmt.Errorf("could not resolve master key secret: %w", err)
	}
	cfg.Encryption.MasterKey = resolved
	return nil
}

func hasSecretRefs(cfg *Config) bool {
	for _, uri := range cfg.Providers {
		if strings.Contains(uri, secretRefPrefix) {
			return true
		}
	}
	return strings.Contains(cfg.Encryption.MasterKey, secretRefPrefix)
}

func newVaultClient(cfg VaultConfig) (*api.Client, error) {
	vaultCfg := api.DefaultConfig()
	if cfg.Address != "" {
		vaultCfg.Address = cfg.Address
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	tokenEnv := cfg.TokenEnv
	if tokenEnv == "" {
		tokenEnv = defaultTokenEnv
	}
	if token := os.Getenv(tokenEnv); token != "" {
		client.SetToken(token)
	}
	return client, nil
}

// secretResolver reads secrets and caches whole paths, so several fields of
// one secret cost a single Vault read.
type secretResolver struct {
	client *api.Client
	log    *slog.Logger
	cache  map[string]map[string]any
}

func (r *secretResolver) resolveString(ctx context.Context, value string) (string, error) {
	var firstErr error
	resolved := secretRefPattern.ReplaceAllStringFunc(value, func(ref string) string {
		if firstErr != nil {
			return ref
		}
		plain, err := r.resolveRef(ctx, ref)
		if err != nil {
			firstErr = err
			return ref
		}
		return plain
	})
	if firstErr != nil {
		return "", firstErr
	}

	// A leftover prefix means a reference the pattern could not parse.
	// Failing here beats handing a malformed credential to a provider.
	if strings.Contains(resolved, secretRefPrefix) {
		return "", fmt.Errorf("malformed secret reference in %q, want %sPATH#FIELD", value, secretRefPrefix)
	}
	return resolved, nil
}

func (r *secretResolver) resolveRef(ctx context.Context, ref string) (string, error) {
	path, field, ok := strings.Cut(strings.TrimPrefix(ref, secretRefPrefix), "#")
	if !ok || path == "" || field == "" {
		return "", fmt.Errorf("malformed secret reference %q, want %sPATH#FIELD", ref, secretRefPrefix)
	}

	data, err := r.readPath(ctx, path)
	if err != nil {
		return "", err
	}

	raw, ok := data[field]
	if !ok {
		return "", fmt.Errorf("secret %s has no field %q", path, field)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret field %s#%s is not a string", path, field)
	}
	return value, nil
}

func (r *secretResolver) readPath(ctx context.Context, path string) (map[string]any, error) {
	if cached, ok := r.cache[path]; ok {
		return cached, nil
	}

	secret, err := r.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from Vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret %s not found in Vault", path)
	}

	// KV v2 wraps the fields in a nested data map; KV v1 returns them at
	// the top level.
	data := secret.Data
	if inner, ok := secret.Data["data"].(map[string]any); ok {
		data = inner
	}

	r.cache[path] = data
	r.log.Debug("Resolved secret from Vault", slog.String("path", path))
	return data, nil
}
