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

// ReceiptBuilder constructs a Receipt document. Unlike the other
// variants, a receipt is typically signed incrementally by each party
// as it changes hands; see Sign and Countersign.
type ReceiptBuilder struct {
	parties  []schema.Party
	exchange schema.Exchange
	outcome  string
	ts       *int64
}

// NewReceipt starts a ReceiptBuilder.
func NewReceipt() *ReceiptBuilder {
	return &ReceiptBuilder{}
}

// WithParty appends a party.
func (b *ReceiptBuilder) WithParty(p schema.Party) *ReceiptBuilder {
	b.parties = append(b.parties, p)
	return b
}

// WithExchange sets what was exchanged.
func (b *ReceiptBuilder) WithExchange(ex schema.Exchange) *ReceiptBuilder {
	b.exchange = ex
	return b
}

// WithOutcome sets out, one of the Outcome* constants.
func (b *ReceiptBuilder) WithOutcome(outcome string) *ReceiptBuilder {
	b.outcome = outcome
	return b
}

// WithTimestamp overrides the default now() timestamp.
func (b *ReceiptBuilder) WithTimestamp(ts int64) *ReceiptBuilder {
	b.ts = &ts
	return b
}

func (b *ReceiptBuilder) build() (*schema.Receipt, error) {
	ts := b.ts
	if ts == nil {
		t := now()
		ts = &t
	}
	d := &schema.Receipt{
		Base: schema.Base{V: schema.Version, T: schema.TagReceipt, TS: ts},
		P:    b.parties,
		Ex:   b.exchange,
		Out:  b.outcome,
	}
	if err := schema.ValidateReceipt(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Build produces the unsigned receipt. Parties countersign it one at a
// time via Countersign, each into the slot at its own index in p; no
// signing order is enforced.
func (b *ReceiptBuilder) Build() (*schema.Receipt, error) {
	return b.build()
}

// Sign builds the receipt and attaches the first party's signature at
// partyIndex, leaving every other slot nil until countersigned. format
// selects the wire encoding every party's signature is bound to; every
// Countersign call against this receipt must use the same format.
func (b *ReceiptBuilder) Sign(partyIndex int, priv ed25519.PrivateKey, alg crypto.Algorithm, pub ed25519.PublicKey, format codec.Format) (*schema.Receipt, error) {
	d, err := b.build()
	if err != nil {
		return nil, err
	}
	return Countersign(d, partyIndex, priv, alg, pub, format)
}

// Countersign stores partyIndex's signature in slot partyIndex of d.S,
// allocating the slice on first use. The signature is computed over the canonical
// form of d with s stripped, so tampering with any other field between
// signings invalidates every prior signature, not just the one added
// here. format must match the encoding every other party signed over.
func Countersign(d *schema.Receipt, partyIndex int, priv ed25519.PrivateKey, alg crypto.Algorithm, pub ed25519.PublicKey, format codec.Format) (*schema.Receipt, error) {
	if partyIndex < 0 || partyIndex >= len(d.P) {
		return nil, atperrors.New(atperrors.InvalidInput, "p", fmt.Errorf("party index %d out of range", partyIndex))
	}
	if d.S == nil {
		d.S = make([]*schema.Signature, len(d.P))
	}
	if len(d.S) != len(d.P) {
		return nil, atperrors.New(atperrors.SchemaViolation, "s", fmt.Errorf("signature slots (%d) must match party count (%d)", len(d.S), len(d.P)))
	}
	sig, err := signatureObject(priv, pub, alg, d, format)
	if err != nil {
		return nil, atperrors.New(atperrors.CryptoFailure, fmt.Sprintf("s[%d]", partyIndex), err)
	}
	d.S[partyIndex] = sig
	return d, nil
}
