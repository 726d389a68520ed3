// Copyright 2025 Agent Trust Protocol Contributors

package builder

import (
	"crypto/ed25519"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// HeartbeatBuilder constructs a signed Heartbeat document.
type HeartbeatBuilder struct {
	fingerprint string
	ref         schema.ChainRef
	seq         uint64
	msg         string
	ts          *int64
}

// NewHeartbeat starts a HeartbeatBuilder.
func NewHeartbeat() *HeartbeatBuilder {
	return &HeartbeatBuilder{}
}

// WithIdentity sets the heartbeating identity's fingerprint and
// anchoring reference.
func (b *HeartbeatBuilder) WithIdentity(fingerprint string, ref schema.ChainRef) *HeartbeatBuilder {
	b.fingerprint = fingerprint
	b.ref = ref
	return b
}

// WithSeq sets the monotonic sequence number. The caller is responsible
// for tracking the last seq it used; the builder does not persist one.
func (b *HeartbeatBuilder) WithSeq(seq uint64) *HeartbeatBuilder {
	b.seq = seq
	return b
}

// WithMessage sets the optional msg field.
func (b *HeartbeatBuilder) WithMessage(msg string) *HeartbeatBuilder {
	b.msg = msg
	return b
}

// WithTimestamp overrides the default now() timestamp.
func (b *HeartbeatBuilder) WithTimestamp(ts int64) *HeartbeatBuilder {
	b.ts = &ts
	return b
}

func (b *HeartbeatBuilder) build() (*schema.Heartbeat, error) {
	ts := b.ts
	if ts == nil {
		t := now()
		ts = &t
	}
	d := &schema.Heartbeat{
		Base: schema.Base{V: schema.Version, T: schema.TagHeartbeat, TS: ts},
		F:    b.fingerprint,
		Ref:  b.ref,
		Seq:  b.seq,
		Msg:  b.msg,
	}
	if err := schema.ValidateHeartbeat(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Sign builds and signs with the current key of f's chain. format
// selects the wire encoding the signature is bound to.
func (b *HeartbeatBuilder) Sign(priv ed25519.PrivateKey, alg crypto.Algorithm, pub ed25519.PublicKey, format codec.Format) (*schema.Heartbeat, error) {
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
