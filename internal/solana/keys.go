package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidateAddress checks that addr is a syntactically valid Solana address:
// base58 text decoding to exactly 32 bytes.
func ValidateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address must decode to 32 bytes, got %d", len(raw))
	}
	return nil
}

// IsOnCurve reports whether addr decodes to a point on the ed25519 curve.
// Wallet addresses are curve points; program-derived addresses are not.
func IsOnCurve(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// Keypair is an ed25519 signing key with its base58 pubkey.
// Key material is held only for the scope of the operation using it;
// nothing in this package persists it.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  string
}

// KeypairFromBytes builds a Keypair from the 64-byte wallet format:
// 32-byte seed followed by the 32-byte public key.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}

	priv := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !bytes.Equal(priv.Public().(ed25519.PublicKey), b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("public key does not match seed")
	}

	return &Keypair{
		priv: priv,
		pub:  base58.Encode(b[ed25519.SeedSize:]),
	}, nil
}

// KeypairFromJSON parses the JSON byte-array keypair format used by the
// Solana CLI (and the TREASURY_KEYPAIR environment variable).
func KeypairFromJSON(data string) (*Keypair, error) {
	var ints []int
	if err := json.Unmarshal([]byte(data), &ints); err != nil {
		return nil, fmt.Errorf("parse keypair json: %w", err)
	}

	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}
	return KeypairFromBytes(raw)
}

// Pubkey returns the base58-encoded public key.
func (k *Keypair) Pubkey() string {
	return k.pub
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}
