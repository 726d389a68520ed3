// Copyright 2025 Agent Trust Protocol Contributors
//
// Document builders - Construct, validate, and sign each ATP document
// variant from caller inputs. Each builder accumulates fields through
// WithX(...) chain calls, validated and assembled in Build().

package builder

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// maxTimestampDrift bounds how stale or futuristic a builder's own
// clock reading may be, mirroring the verifier's warning threshold but
// enforced here as a hard precondition on the signer's own input.
const maxTimestampDrift = 2 * time.Hour

func now() int64 { return time.Now().Unix() }

func sign(priv ed25519.PrivateKey, v interface{}, format codec.Format) ([]byte, error) {
	doc, err := schema.ToDoc(v)
	if err != nil {
		return nil, fmt.Errorf("builder: to doc: %w", err)
	}
	payload, err := codec.EncodeForSigning(doc, format)
	if err != nil {
		return nil, fmt.Errorf("builder: encode for signing: %w", err)
	}
	return crypto.Sign(priv, payload)
}

func signatureObject(priv ed25519.PrivateKey, pub ed25519.PublicKey, alg crypto.Algorithm, v interface{}, format codec.Format) (*schema.Signature, error) {
	sig, err := sign(priv, v, format)
	if err != nil {
		return nil, err
	}
	return &schema.Signature{F: crypto.Fingerprint(alg, pub), Sig: codec.B64Encode(sig)}, nil
}

// IdentityBuilder constructs a signed Identity document.
type IdentityBuilder struct {
	name string
	keys []schema.Key
	meta map[string][][2]string
	ts   *int64
	errs []error
}

// NewIdentity starts an IdentityBuilder.
func NewIdentity() *IdentityBuilder {
	return &IdentityBuilder{}
}

// WithName sets the agent name.
func (b *IdentityBuilder) WithName(name string) *IdentityBuilder {
	b.name = name
	return b
}

// WithKey appends a key object, encoding pub as base64url.
func (b *IdentityBuilder) WithKey(alg crypto.Algorithm, pub ed25519.PublicKey) *IdentityBuilder {
	b.keys = append(b.keys, schema.Key{T: string(alg), P: codec.B64Encode(pub)})
	return b
}

// WithMetadata sets the m collection map.
func (b *IdentityBuilder) WithMetadata(m map[string][][2]string) *IdentityBuilder {
	b.meta = m
	return b
}

// WithTimestamp overrides the default now() timestamp; intended for
// tests and deterministic fixtures.
func (b *IdentityBuilder) WithTimestamp(ts int64) *IdentityBuilder {
	b.ts = &ts
	return b
}

func (b *IdentityBuilder) validate() error {
	if len(b.keys) == 0 {
		return atperrors.New(atperrors.InvalidInput, "k", fmt.Errorf("at least one key required"))
	}
	if b.ts != nil {
		drift := now() - *b.ts
		if drift < 0 {
			drift = -drift
		}
		if time.Duration(drift)*time.Second > maxTimestampDrift {
			return atperrors.New(atperrors.InvalidInput, "ts", fmt.Errorf("timestamp is not current"))
		}
	}
	return nil
}

// Build validates and assembles the unsigned Identity document. Sign
// must be called separately to attach the signature, since the signer
// may be a different process than the one holding the private key.
func (b *IdentityBuilder) Build() (*schema.Identity, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	ts := b.ts
	if ts == nil {
		t := now()
		ts = &t
	}
	d := &schema.Identity{
		Base: schema.Base{V: schema.Version, T: schema.TagIdentity, TS: ts},
		N:    b.name,
		K:    b.keys,
		M:    b.meta,
	}
	if err := schema.ValidateIdentity(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Sign builds and signs the document with priv, whose public half must
// be the key at index keyIndex in the already-built document's k array.
// format selects the wire encoding the signature is bound to; it must
// match the format the document will actually be inscribed or
// transmitted as, since a signature computed over one encoding does not
// verify against the other.
func (b *IdentityBuilder) Sign(priv ed25519.PrivateKey, keyIndex int, format codec.Format) (*schema.Identity, error) {
	d, err := b.Build()
	if err != nil {
		return nil, err
	}
	if keyIndex < 0 || keyIndex >= len(d.K) {
		return nil, atperrors.New(atperrors.InvalidInput, "k", fmt.Errorf("key index %d out of range", keyIndex))
	}
	alg := crypto.Algorithm(d.K[keyIndex].T)
	pub, perr := codec.B64Decode(d.K[keyIndex].P)
	if perr != nil {
		return nil, atperrors.New(atperrors.SchemaViolation, "k.p", perr)
	}
	sig, err := signatureObject(priv, pub, alg, d, format)
	if err != nil {
		return nil, atperrors.New(atperrors.CryptoFailure, "s", err)
	}
	d.S = sig
	return d, nil
}
