// Copyright 2025 Agent Trust Protocol Contributors

package builder

import (
	"crypto/ed25519"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// RevocationBuilder constructs a signed Revocation document (the
// "poison pill").
type RevocationBuilder struct {
	target schema.Target
	reason string
	ts     *int64
}

// NewRevocation starts a RevocationBuilder.
func NewRevocation() *RevocationBuilder {
	return &RevocationBuilder{}
}

// WithTarget sets the chain reference being killed.
func (b *RevocationBuilder) WithTarget(t schema.Target) *RevocationBuilder {
	b.target = t
	return b
}

// WithReason sets the revocation reason, one of RevokeReason*.
func (b *RevocationBuilder) WithReason(reason string) *RevocationBuilder {
	b.reason = reason
	return b
}

// WithTimestamp overrides the default now() timestamp.
func (b *RevocationBuilder) WithTimestamp(ts int64) *RevocationBuilder {
	b.ts = &ts
	return b
}

func (b *RevocationBuilder) build() (*schema.Revocation, error) {
	ts := b.ts
	if ts == nil {
		t := now()
		ts = &t
	}
	d := &schema.Revocation{
		Base:   schema.Base{V: schema.Version, T: schema.TagRevocation, TS: ts},
		Target: b.target,
		Reason: b.reason,
	}
	if err := schema.ValidateRevocation(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Sign builds and signs with any key that has ever been part of the
// target's supersession chain (the poison-pill signer). The caller
// supplies alg/pub for fingerprinting; the verifier, not this builder,
// checks chain membership. format selects the wire encoding the
// signature is bound to.
func (b *RevocationBuilder) Sign(priv ed25519.PrivateKey, alg crypto.Algorithm, pub ed25519.PublicKey, format codec.Format) (*schema.Revocation, error) {
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
