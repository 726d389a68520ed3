// Copyright 2025 Agent Trust Protocol Contributors
//
// Keystore - Per-fingerprint key files on disk
// One JSON object per file, mode 0600. No directory-wide lock or cached
// index is held across calls; each operation opens exactly one file.

package keystore

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
)

// record is the on-disk shape of a key file.
type record struct {
	Type        string `json:"type"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"publicKey"`
	PrivateKey  string `json:"privateKey"`
}

// Store persists key material under Dir, one file per fingerprint.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir. The directory is created with mode
// 0700 if it does not already exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("keystore: create %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(fingerprint string) string {
	return filepath.Join(s.Dir, fingerprint+".json")
}

// Save writes kp under its fingerprint, computed with alg. The file is
// created (or truncated) with mode 0600.
func (s *Store) Save(alg crypto.Algorithm, kp *crypto.KeyPair) error {
	fp := crypto.Fingerprint(alg, kp.Public)
	rec := record{
		Type:        string(alg),
		Fingerprint: fp,
		PublicKey:   codec.B64Encode(kp.Public),
		PrivateKey:  codec.B64Encode(kp.Private),
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal %s: %w", fp, err)
	}
	if err := os.WriteFile(s.path(fp), raw, 0600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", fp, err)
	}
	return nil
}

// Load reads the key file for fingerprint.
func (s *Store) Load(fingerprint string) (crypto.Algorithm, *crypto.KeyPair, error) {
	raw, err := os.ReadFile(s.path(fingerprint))
	if err != nil {
		return "", nil, fmt.Errorf("keystore: read %s: %w", fingerprint, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", nil, fmt.Errorf("keystore: unmarshal %s: %w", fingerprint, err)
	}
	pub, err := codec.B64Decode(rec.PublicKey)
	if err != nil {
		return "", nil, fmt.Errorf("keystore: decode public key %s: %w", fingerprint, err)
	}
	priv, err := codec.B64Decode(rec.PrivateKey)
	if err != nil {
		return "", nil, fmt.Errorf("keystore: decode private key %s: %w", fingerprint, err)
	}
	return crypto.Algorithm(rec.Type), &crypto.KeyPair{
		Public:  ed25519.PublicKey(pub),
		Private: ed25519.PrivateKey(priv),
	}, nil
}

// Delete removes the key file for fingerprint. Deleting a file that
// does not exist is not an error.
func (s *Store) Delete(fingerprint string) error {
	if err := os.Remove(s.path(fingerprint)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("keystore: delete %s: %w", fingerprint, err)
	}
	return nil
}

// List returns the fingerprints of every key file in the store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("keystore: list %s: %w", s.Dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".json" {
			continue
		}
		out = append(out, name[:len(name)-len(ext)])
	}
	return out, nil
}
