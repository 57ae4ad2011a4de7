// Package keypair reads and writes ed25519 keypair files in the Solana CLI
// format: a JSON array of the 64 private key bytes.
package keypair

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"membership-registry/internal/domain"
)

// Keypair is an ed25519 signing key and its public key.
type Keypair struct {
	Private ed25519.PrivateKey
	Public  domain.PublicKey
}

// Generate creates a random keypair.
func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey wraps an existing private key.
func FromPrivateKey(priv ed25519.PrivateKey) (*Keypair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pk, err := domain.PublicKeyFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Keypair{Private: priv, Public: pk}, nil
}

// Load reads a keypair file.
func Load(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}

	// []byte would decode from base64; the file is an array of numbers.
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair %s: want %d bytes, got %d", path, ed25519.PrivateKeySize, len(raw))
	}

	priv := make(ed25519.PrivateKey, len(raw))
	for i, b := range raw {
		if b < 0 || b > 255 {
			return nil, fmt.Errorf("keypair %s: byte %d out of range", path, i)
		}
		priv[i] = byte(b)
	}

	// The trailing 32 bytes are the public key; reject files where they
	// disagree with the key the seed derives.
	derived := ed25519.NewKeyFromSeed(priv.Seed())
	if !derived.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(priv[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("keypair %s: public key does not match seed", path)
	}
	return FromPrivateKey(derived)
}

// Save writes the keypair to path with owner-only permissions.
func (k *Keypair) Save(path string) error {
	raw := make([]int, len(k.Private))
	for i, b := range k.Private {
		raw[i] = int(b)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair: %w", err)
	}
	return nil
}
