// Copyright 2025 Agent Trust Protocol Contributors

package builder

import (
	"crypto/ed25519"
	"fmt"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// SupersessionBuilder constructs a signed Supersession document.
type SupersessionBuilder struct {
	target schema.Target
	name   string
	keys   []schema.Key
	meta   map[string][][2]string
	reason string
	ts     *int64
}

// NewSupersession starts a SupersessionBuilder.
func NewSupersession() *SupersessionBuilder {
	return &SupersessionBuilder{}
}

// WithTarget sets the old identity's chain reference.
func (b *SupersessionBuilder) WithTarget(t schema.Target) *SupersessionBuilder {
	b.target = t
	return b
}

// WithName sets the (possibly unchanged) agent name.
func (b *SupersessionBuilder) WithName(name string) *SupersessionBuilder {
	b.name = name
	return b
}

// WithKey appends a new key object.
func (b *SupersessionBuilder) WithKey(alg crypto.Algorithm, pub ed25519.PublicKey) *SupersessionBuilder {
	b.keys = append(b.keys, schema.Key{T: string(alg), P: codec.B64Encode(pub)})
	return b
}

// WithMetadata sets the m collection map.
func (b *SupersessionBuilder) WithMetadata(m map[string][][2]string) *SupersessionBuilder {
	b.meta = m
	return b
}

// WithReason sets the supersession reason, one of the Reason* constants.
func (b *SupersessionBuilder) WithReason(reason string) *SupersessionBuilder {
	b.reason = reason
	return b
}

// WithTimestamp overrides the default now() timestamp.
func (b *SupersessionBuilder) WithTimestamp(ts int64) *SupersessionBuilder {
	b.ts = &ts
	return b
}

func (b *SupersessionBuilder) build() (*schema.Supersession, error) {
	ts := b.ts
	if ts == nil {
		t := now()
		ts = &t
	}
	d := &schema.Supersession{
		Base:   schema.Base{V: schema.Version, T: schema.TagSupersession, TS: ts},
		Target: b.target,
		N:      b.name,
		K:      b.keys,
		M:      b.meta,
		Reason: b.reason,
	}
	if err := schema.ValidateSupersession(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Sign builds the document and attaches both required signatures: the
// first from oldPriv (a key in the old identity's chain, fingerprinted
// from oldAlg/oldPub), the second from newPriv (the first key in the new
// k array).
// format selects the wire encoding both signatures are bound to.
func (b *SupersessionBuilder) Sign(oldPriv ed25519.PrivateKey, oldAlg crypto.Algorithm, oldPub ed25519.PublicKey, newPriv ed25519.PrivateKey, format codec.Format) (*schema.Supersession, error) {
	d, err := b.build()
	if err != nil {
		return nil, err
	}
	if len(d.K) == 0 {
		return nil, atperrors.New(atperrors.InvalidInput, "k", fmt.Errorf("no new keys present"))
	}

	oldSig, err := signatureObject(oldPriv, oldPub, oldAlg, d, format)
	if err != nil {
		return nil, atperrors.New(atperrors.CryptoFailure, "s[0]", err)
	}

	newAlg := crypto.Algorithm(d.K[0].T)
	newPub, perr := codec.B64Decode(d.K[0].P)
	if perr != nil {
		return nil, atperrors.New(atperrors.SchemaViolation, "k[0].p", perr)
	}
	newSig, err := signatureObject(newPriv, newPub, newAlg, d, format)
	if err != nil {
		return nil, atperrors.New(atperrors.CryptoFailure, "s[1]", err)
	}

	d.S = []schema.Signature{*oldSig, *newSig}
	return d, nil
}
