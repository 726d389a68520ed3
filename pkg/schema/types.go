// Copyright 2025 Agent Trust Protocol Contributors
//
// Schema - The seven ATP document variants as a closed tagged union.
// Per protocol section 3. Dispatch is on the Type (t) field with a Go
// type switch / pattern match, never runtime polymorphism on a generic
// "document" interface (per protocol section 9, Design Notes).

package schema

// Version is the only document format version this engine understands.
const Version = "1.0"

// Tag values for the t discriminator field.
const (
	TagIdentity              = "id"
	TagSupersession          = "super"
	TagRevocation            = "revoke"
	TagAttestation           = "att"
	TagAttestationRevocation = "att-revoke"
	TagHeartbeat             = "hb"
	TagReceipt               = "rcpt"
)

// DefaultNet is the CAIP-2 chain identifier for Bitcoin mainnet, used
// when a ChainRef omits Net.
const DefaultNet = "bip122:000000000019d6689c085ae165831e93"

// ChainRef locates a document at a specific transaction on a specific
// network. Net defaults to Bitcoin mainnet; ID must be a 64-hex-char
// TXID and is never interpretable as a file path.
type ChainRef struct {
	Net string `json:"net,omitempty"`
	ID  string `json:"id"`
}

// NetOrDefault returns r.Net, defaulting to DefaultNet when empty.
func (r ChainRef) NetOrDefault() string {
	if r.Net == "" {
		return DefaultNet
	}
	return r.Net
}

// Key is a public key object: algorithm tag plus base64url-encoded
// public key bytes.
type Key struct {
	T string `json:"t"`
	P string `json:"p"`
}

// Signature is a single signer's fingerprint and base64url-encoded
// signature bytes.
type Signature struct {
	F   string `json:"f"`
	Sig string `json:"sig"`
}

// Target is the {fingerprint, chain reference} pair every supersession
// and revocation points at, and that attestations use for from/to.
type Target struct {
	F   string   `json:"f"`
	Ref ChainRef `json:"ref"`
}

// Base carries the fields every variant shares.
type Base struct {
	V  string `json:"v"`
	T  string `json:"t"`
	TS *int64 `json:"ts,omitempty"`
}

// Identity is the genesis document: name -> key(s) binding.
type Identity struct {
	Base
	N string                 `json:"n"`
	K []Key                  `json:"k"`
	M map[string][][2]string `json:"m,omitempty"`
	S *Signature             `json:"s,omitempty"`
}

// Supersession rotates keys, upgrades algorithms, or updates metadata.
// S must have exactly two entries once signed: the old chain's current
// key first, the new key second.
type Supersession struct {
	Base
	Target Target                 `json:"target"`
	N      string                 `json:"n"`
	K      []Key                  `json:"k"`
	M      map[string][][2]string `json:"m,omitempty"`
	Reason string                 `json:"reason"`
	S      []Signature            `json:"s,omitempty"`
}

// Reason values for Supersession.Reason.
const (
	ReasonKeyRotation      = "key-rotation"
	ReasonAlgorithmUpgrade = "algorithm-upgrade"
	ReasonKeyCompromised   = "key-compromised"
	ReasonMetadataUpdate   = "metadata-update"
	ReasonKeyAddition      = "key-addition"
	ReasonKeyRemoval       = "key-removal"
)

// Revocation permanently kills an identity chain (the "poison pill").
type Revocation struct {
	Base
	Target Target     `json:"target"`
	Reason string     `json:"reason"`
	S      *Signature `json:"s,omitempty"`
}

// Reason values for Revocation.Reason.
const (
	RevokeReasonKeyCompromised = "key-compromised"
	RevokeReasonDefunct        = "defunct"
)

// Attestation is one identity vouching for another.
type Attestation struct {
	Base
	From Target     `json:"from"`
	To   Target     `json:"to"`
	Ctx  string     `json:"ctx,omitempty"`
	VNA  *int64     `json:"vna,omitempty"`
	S    *Signature `json:"s,omitempty"`
}

// AttestationRevocation retracts a specific attestation.
type AttestationRevocation struct {
	Base
	Ref    ChainRef   `json:"ref"`
	Reason string     `json:"reason"`
	S      *Signature `json:"s,omitempty"`
}

// Reason values for AttestationRevocation.Reason.
const (
	AttRevokeReasonRetracted  = "retracted"
	AttRevokeReasonFraudulent = "fraudulent"
	AttRevokeReasonExpired    = "expired"
	AttRevokeReasonError      = "error"
)

// Heartbeat is proof of liveness with a monotonically increasing
// sequence number, unique per identity (enforced by the verifier, not
// by any schema field; see protocol section 9, Open Question 4).
type Heartbeat struct {
	Base
	F   string     `json:"f"`
	Ref ChainRef   `json:"ref"`
	Seq uint64     `json:"seq"`
	Msg string     `json:"msg,omitempty"`
	S   *Signature `json:"s,omitempty"`
}

// Party is one participant in a Receipt.
type Party struct {
	F    string   `json:"f"`
	Ref  ChainRef `json:"ref"`
	Role string   `json:"role"`
}

// Exchange describes what a Receipt's parties exchanged.
type Exchange struct {
	Type string `json:"type"`
	Sum  string `json:"sum"`
	Val  *int64 `json:"val,omitempty"`
}

// Outcome values for Receipt.Out.
const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeCancelled = "cancelled"
	OutcomeDisputed  = "disputed"
)

// Receipt is a multi-party, co-signed record of an exchange. A nil
// entry in S means that party has not yet countersigned.
type Receipt struct {
	Base
	P   []Party      `json:"p"`
	Ex  Exchange     `json:"ex"`
	Out string       `json:"out"`
	S   []*Signature `json:"s,omitempty"`
}
