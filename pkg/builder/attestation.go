// Copyright 2025 Agent Trust Protocol Contributors

package builder

import (
	"crypto/ed25519"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// AttestationBuilder constructs a signed Attestation document.
type AttestationBuilder struct {
	from schema.Target
	to   schema.Target
	ctx  string
	vna  *int64
	ts   *int64
}

// NewAttestation starts an AttestationBuilder.
func NewAttestation() *AttestationBuilder {
	return &AttestationBuilder{}
}

// WithFrom sets the attestor.
func (b *AttestationBuilder) WithFrom(t schema.Target) *AttestationBuilder {
	b.from = t
	return b
}

// WithTo sets the attested-to identity.
func (b *AttestationBuilder) WithTo(t schema.Target) *AttestationBuilder {
	b.to = t
	return b
}

// WithContext sets the free-text ctx field.
func (b *AttestationBuilder) WithContext(ctx string) *AttestationBuilder {
	b.ctx = ctx
	return b
}

// WithExpiry sets vna (valid-not-after), Unix seconds.
func (b *AttestationBuilder) WithExpiry(vna int64) *AttestationBuilder {
	b.vna = &vna
	return b
}

// WithTimestamp overrides the default now() timestamp.
func (b *AttestationBuilder) WithTimestamp(ts int64) *AttestationBuilder {
	b.ts = &ts
	return b
}

func (b *AttestationBuilder) build() (*schema.Attestation, error) {
	ts := b.ts
	if ts == nil {
		t := now()
		ts = &t
	}
	d := &schema.Attestation{
		Base: schema.Base{V: schema.Version, T: schema.TagAttestation, TS: ts},
		From: b.from,
		To:   b.to,
		Ctx:  b.ctx,
		VNA:  b.vna,
	}
	if err := schema.ValidateAttestation(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Sign builds and signs with the attestor's private key. format selects
// the wire encoding the signature is bound to.
func (b *AttestationBuilder) Sign(priv ed25519.PrivateKey, alg crypto.Algorithm, pub ed25519.PublicKey, format codec.Format) (*schema.Attestation, error) {
	d, err := b.build()
	if err != nil {
		return nil, err
	}
	sig, serr := signatureObject(priv, pub, alg, d, format)
	if serr != nil {
		return nil, atperrors.New(atperrors.CryptoFailure, "s", serr)
	}
	d.S = sig
	return d, nil
}
