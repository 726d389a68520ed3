// Copyright 2025 Agent Trust Protocol Contributors
//
// Crypto - Ed25519 signing/verification and fingerprint computation
// Per protocol section 4.2.

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/atp-protocol/atp-engine/pkg/codec"
)

// Algorithm identifies a supported key algorithm.
type Algorithm string

const (
	AlgEd25519   Algorithm = "ed25519"
	AlgDilithium Algorithm = "dilithium" // post-quantum placeholder
	AlgFalcon    Algorithm = "falcon"    // post-quantum placeholder
)

// IsPostQuantum reports whether alg is one of the PQ placeholders, which
// use SHA-384 fingerprints instead of SHA-256.
func (a Algorithm) IsPostQuantum() bool {
	return a == AlgDilithium || a == AlgFalcon
}

// KeyPair is a generated Ed25519 key pair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a new Ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key pair: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// Fingerprint returns base64url(SHA256(pubkey)) for ed25519, or
// base64url(SHA384(pubkey)) for the PQ placeholder algorithms. The
// output length (43 vs 64 characters) is itself a signal of algorithm.
func Fingerprint(alg Algorithm, pubkey []byte) string {
	if alg.IsPostQuantum() {
		sum := sha512.Sum384(pubkey)
		return codec.B64Encode(sum[:])
	}
	sum := sha256.Sum256(pubkey)
	return codec.B64Encode(sum[:])
}

// Sign signs payload (already domain-separated and canonically encoded)
// with priv, returning the raw 64-byte Ed25519 signature.
func Sign(priv ed25519.PrivateKey, payload []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid private key size %d", len(priv))
	}
	return ed25519.Sign(priv, payload), nil
}

// Verify reports whether sig is a valid Ed25519 signature over payload
// under pub. There is no malleability allowance: any failure is a hard
// reject.
func Verify(pub ed25519.PublicKey, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}
