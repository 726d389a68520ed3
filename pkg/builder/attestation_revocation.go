// Copyright 2025 Agent Trust Protocol Contributors

package builder

import (
	"crypto/ed25519"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// AttestationRevocationBuilder constructs a signed AttestationRevocation
// document.
type AttestationRevocationBuilder struct {
	ref    schema.ChainRef
	reason string
	ts     *int64
}

// NewAttestationRevocation starts an AttestationRevocationBuilder.
func NewAttestationRevocation() *AttestationRevocationBuilder {
	return &AttestationRevocationBuilder{}
}

// WithRef sets the attestation being retracted.
func (b *AttestationRevocationBuilder) WithRef(ref schema.ChainRef) *AttestationRevocationBuilder {
	b.ref = ref
	return b
}

// WithReason sets the reason, one of AttRevokeReason*.
func (b *AttestationRevocationBuilder) WithReason(reason string) *AttestationRevocationBuilder {
	b.reason = reason
	return b
}

// WithTimestamp overrides the default now() timestamp.
func (b *AttestationRevocationBuilder) WithTimestamp(ts int64) *AttestationRevocationBuilder {
	b.ts = &ts
	return b
}

func (b *AttestationRevocationBuilder) build() (*schema.AttestationRevocation, error) {
	ts := b.ts
	if ts == nil {
		t := now()
		ts = &t
	}
	d := &schema.AttestationRevocation{
		Base:   schema.Base{V: schema.Version, T: schema.TagAttestationRevocation, TS: ts},
		Ref:    b.ref,
		Reason: b.reason,
	}
	if err := schema.ValidateAttestationRevocation(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Sign builds and signs with any key in the attestor's supersession
// chain. format selects the wire encoding the signature is bound to.
func (b *AttestationRevocationBuilder) Sign(priv ed25519.PrivateKey, alg crypto.Algorithm, pub ed25519.PublicKey, format codec.Format) (*schema.AttestationRevocation, error) {
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
