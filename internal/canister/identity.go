package canister

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Principal is an opaque textual identifier standing for a caller: a
// user, a canister, or anonymous.
type Principal string

// IdentityResolver is re-queried before every canister call; production
// implementations must never cache the result across calls, so an
// externally switched identity takes effect immediately.
type IdentityResolver interface {
	Principal(ctx context.Context) (Principal, error)
	Sign(ctx context.Context, digest []byte) ([]byte, error)
}

// StaticIdentity is a fixed-principal resolver for tests and deployments
// that pin a literal identity rather than reading the local dev tool's
// selection from disk.
type StaticIdentity struct {
	Pr  Principal
	Key *ecdsa.PrivateKey
}

func (s StaticIdentity) Principal(context.Context) (Principal, error) { return s.Pr, nil }

func (s StaticIdentity) Sign(_ context.Context, digest []byte) ([]byte, error) {
	if s.Key == nil {
		return nil, fmt.Errorf("canister: static identity has no signing key")
	}
	return ecdsa.SignASN1(rand.Reader, s.Key, digest)
}

// DiskIdentity reads the locally selected dfx identity fresh on every call,
// so switching identity externally takes effect without restarting the
// bridge. configDir defaults to "~/.config/dfx" when empty.
type DiskIdentity struct {
	ConfigDir string
}

type dfxIdentityConfig struct {
	Default string `json:"default"`
}

func (d DiskIdentity) configDir() (string, error) {
	if d.ConfigDir != "" {
		return d.ConfigDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("canister: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "dfx"), nil
}

func (d DiskIdentity) selectedIdentityName() (string, error) {
	dir, err := d.configDir()
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(dir, "identity.json"))
	if err != nil {
		return "", fmt.Errorf("canister: reading selected identity: %w", err)
	}
	var cfg dfxIdentityConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return "", fmt.Errorf("canister: parsing identity.json: %w", err)
	}
	if cfg.Default == "" {
		return "", fmt.Errorf("canister: identity.json has no default identity")
	}
	return cfg.Default, nil
}

func (d DiskIdentity) loadKey() (*ecdsa.PrivateKey, error) {
	dir, err := d.configDir()
	if err != nil {
		return nil, err
	}
	name, err := d.selectedIdentityName()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, "identity", name, "identity.pem"))
	if err != nil {
		return nil, fmt.Errorf("canister: reading identity.pem for %q: %w", name, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("canister: identity.pem for %q has no PEM block", name)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("canister: parsing EC private key for %q: %w", name, err)
	}
	return key, nil
}

// Principal derives the caller principal from the currently selected
// identity's public key, read fresh from disk.
func (d DiskIdentity) Principal(context.Context) (Principal, error) {
	key, err := d.loadKey()
	if err != nil {
		return "", err
	}
	return principalFromPublicKey(&key.PublicKey), nil
}

// Sign signs digest with the currently selected identity's private key,
// read fresh from disk.
func (d DiskIdentity) Sign(_ context.Context, digest []byte) ([]byte, error) {
	key, err := d.loadKey()
	if err != nil {
		return nil, err
	}
	return ecdsa.SignASN1(rand.Reader, key, digest)
}

// principalFromPublicKey derives a textual principal from a public key's
// DER encoding, the standard Internet Computer self-authenticating
// principal derivation (SHA-224 of the DER-encoded public key, suffixed
// with the self-authenticating type byte, base32-encoded with checksum
// grouping matching CanisterId's textual form).
func principalFromPublicKey(pub *ecdsa.PublicKey) Principal {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return ""
	}
	return Principal(principalTextEncoding(der))
}
