// Copyright 2025 Agent Trust Protocol Contributors
//
// Schema Validation - Structural validation of the seven document
// variants plus the cross-field constraints of protocol section 4.3.

package schema

import (
	"fmt"
	"regexp"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
)

// nameRe is the ASCII-only name charset, chosen to preclude Unicode
// homoglyph attacks.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9 _\-.]{1,64}$`)

// txidRe matches a 64-hex-character transaction id. References that do
// not match this are never interpreted as anything else (e.g. a file
// path); they are rejected outright.
var txidRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// maxHeartbeatMsgBytes bounds Heartbeat.Msg so a heartbeat's inscription
// stays close to dust-limit size.
const maxHeartbeatMsgBytes = 256

func violation(field string, err error) error {
	return atperrors.New(atperrors.SchemaViolation, field, err)
}

// ValidateChainRef checks that ref.ID is a well-formed TXID. Net is not
// constrained to a specific allow-list; any CAIP-2-shaped string is
// accepted.
func ValidateChainRef(ref ChainRef) error {
	if !txidRe.MatchString(ref.ID) {
		return violation("ref.id", fmt.Errorf("not a 64-hex-char txid: %q", ref.ID))
	}
	return nil
}

func validateTarget(field string, t Target) error {
	if t.F == "" {
		return violation(field+".f", fmt.Errorf("fingerprint required"))
	}
	if err := ValidateChainRef(t.Ref); err != nil {
		return violation(field+".ref", err)
	}
	return nil
}

func validateKeys(keys []Key) error {
	if len(keys) == 0 {
		return violation("k", fmt.Errorf("at least one key required"))
	}
	seen := make(map[string]bool, len(keys))
	for i, k := range keys {
		if k.P == "" {
			return violation(fmt.Sprintf("k[%d].p", i), fmt.Errorf("public key required"))
		}
		if k.T == "" {
			return violation(fmt.Sprintf("k[%d].t", i), fmt.Errorf("algorithm required"))
		}
		if seen[k.P] {
			return violation("k", fmt.Errorf("duplicate public key at index %d", i))
		}
		seen[k.P] = true
	}
	return nil
}

func validateName(n string) error {
	if !nameRe.MatchString(n) {
		return violation("n", fmt.Errorf("name %q fails charset/length constraint", n))
	}
	return nil
}

func validateBase(b Base, wantTag string) error {
	if b.V != Version {
		return violation("v", fmt.Errorf("unsupported version %q", b.V))
	}
	if b.T != wantTag {
		return violation("t", fmt.Errorf("tag %q does not match %q", b.T, wantTag))
	}
	return nil
}

// Parse dispatches on doc's "t" field, converts it into the
// corresponding typed struct, and applies structural and cross-field
// validation. The returned value is one of *Identity, *Supersession,
// *Revocation, *Attestation, *AttestationRevocation, *Heartbeat, or
// *Receipt.
func Parse(doc codec.Doc) (interface{}, error) {
	tag, ok := Tag(doc)
	if !ok {
		return nil, atperrors.New(atperrors.SchemaViolation, "t", fmt.Errorf("missing discriminator field"))
	}

	switch tag {
	case TagIdentity:
		var d Identity
		if err := FromDoc(doc, &d); err != nil {
			return nil, atperrors.New(atperrors.CodecError, "", err)
		}
		if err := ValidateIdentity(&d); err != nil {
			return nil, err
		}
		return &d, nil

	case TagSupersession:
		var d Supersession
		if err := FromDoc(doc, &d); err != nil {
			return nil, atperrors.New(atperrors.CodecError, "", err)
		}
		if err := ValidateSupersession(&d); err != nil {
			return nil, err
		}
		return &d, nil

	case TagRevocation:
		var d Revocation
		if err := FromDoc(doc, &d); err != nil {
			return nil, atperrors.New(atperrors.CodecError, "", err)
		}
		if err := ValidateRevocation(&d); err != nil {
			return nil, err
		}
		return &d, nil

	case TagAttestation:
		var d Attestation
		if err := FromDoc(doc, &d); err != nil {
			return nil, atperrors.New(atperrors.CodecError, "", err)
		}
		if err := ValidateAttestation(&d); err != nil {
			return nil, err
		}
		return &d, nil

	case TagAttestationRevocation:
		var d AttestationRevocation
		if err := FromDoc(doc, &d); err != nil {
			return nil, atperrors.New(atperrors.CodecError, "", err)
		}
		if err := ValidateAttestationRevocation(&d); err != nil {
			return nil, err
		}
		return &d, nil

	case TagHeartbeat:
		var d Heartbeat
		if err := FromDoc(doc, &d); err != nil {
			return nil, atperrors.New(atperrors.CodecError, "", err)
		}
		if err := ValidateHeartbeat(&d); err != nil {
			return nil, err
		}
		return &d, nil

	case TagReceipt:
		var d Receipt
		if err := FromDoc(doc, &d); err != nil {
			return nil, atperrors.New(atperrors.CodecError, "", err)
		}
		if err := ValidateReceipt(&d); err != nil {
			return nil, err
		}
		return &d, nil

	default:
		return nil, violation("t", fmt.Errorf("unknown document tag %q", tag))
	}
}

// ValidateIdentity checks the id variant's structural constraints.
func ValidateIdentity(d *Identity) error {
	if err := validateBase(d.Base, TagIdentity); err != nil {
		return err
	}
	if err := validateName(d.N); err != nil {
		return err
	}
	if err := validateKeys(d.K); err != nil {
		return err
	}
	return nil
}

// ValidateSupersession checks the super variant's structural
// constraints, including the exactly-two-signature requirement.
func ValidateSupersession(d *Supersession) error {
	if err := validateBase(d.Base, TagSupersession); err != nil {
		return err
	}
	if err := validateTarget("target", d.Target); err != nil {
		return err
	}
	if err := validateName(d.N); err != nil {
		return err
	}
	if err := validateKeys(d.K); err != nil {
		return err
	}
	if !validSupersessionReason(d.Reason) {
		return violation("reason", fmt.Errorf("invalid reason %q", d.Reason))
	}
	if d.S != nil && len(d.S) != 2 {
		return violation("s", fmt.Errorf("supersession requires exactly two signatures, got %d", len(d.S)))
	}
	return nil
}

func validSupersessionReason(r string) bool {
	switch r {
	case ReasonKeyRotation, ReasonAlgorithmUpgrade, ReasonKeyCompromised,
		ReasonMetadataUpdate, ReasonKeyAddition, ReasonKeyRemoval:
		return true
	}
	return false
}

// ValidateRevocation checks the revoke variant's structural constraints.
func ValidateRevocation(d *Revocation) error {
	if err := validateBase(d.Base, TagRevocation); err != nil {
		return err
	}
	if err := validateTarget("target", d.Target); err != nil {
		return err
	}
	switch d.Reason {
	case RevokeReasonKeyCompromised, RevokeReasonDefunct:
	default:
		return violation("reason", fmt.Errorf("invalid reason %q", d.Reason))
	}
	return nil
}

// ValidateAttestation checks the att variant's structural constraints.
func ValidateAttestation(d *Attestation) error {
	if err := validateBase(d.Base, TagAttestation); err != nil {
		return err
	}
	if err := validateTarget("from", d.From); err != nil {
		return err
	}
	if err := validateTarget("to", d.To); err != nil {
		return err
	}
	if d.From.F == d.To.F && d.From.Ref.ID == d.To.Ref.ID {
		return violation("to", fmt.Errorf("an identity cannot attest to itself"))
	}
	return nil
}

// ValidateAttestationRevocation checks the att-revoke variant's
// structural constraints.
func ValidateAttestationRevocation(d *AttestationRevocation) error {
	if err := validateBase(d.Base, TagAttestationRevocation); err != nil {
		return err
	}
	if err := ValidateChainRef(d.Ref); err != nil {
		return violation("ref", err)
	}
	switch d.Reason {
	case AttRevokeReasonRetracted, AttRevokeReasonFraudulent, AttRevokeReasonExpired, AttRevokeReasonError:
	default:
		return violation("reason", fmt.Errorf("invalid reason %q", d.Reason))
	}
	return nil
}

// ValidateHeartbeat checks the hb variant's structural constraints.
func ValidateHeartbeat(d *Heartbeat) error {
	if err := validateBase(d.Base, TagHeartbeat); err != nil {
		return err
	}
	if d.F == "" {
		return violation("f", fmt.Errorf("fingerprint required"))
	}
	if err := ValidateChainRef(d.Ref); err != nil {
		return violation("ref", err)
	}
	if len(d.Msg) > maxHeartbeatMsgBytes {
		return violation("msg", fmt.Errorf("message exceeds %d bytes", maxHeartbeatMsgBytes))
	}
	return nil
}

// ValidateReceipt checks the rcpt variant's structural constraints.
func ValidateReceipt(d *Receipt) error {
	if err := validateBase(d.Base, TagReceipt); err != nil {
		return err
	}
	if len(d.P) < 2 {
		return violation("p", fmt.Errorf("receipt requires at least two parties, got %d", len(d.P)))
	}
	seen := make(map[string]bool, len(d.P))
	for i, p := range d.P {
		if p.F == "" {
			return violation(fmt.Sprintf("p[%d].f", i), fmt.Errorf("fingerprint required"))
		}
		if err := ValidateChainRef(p.Ref); err != nil {
			return violation(fmt.Sprintf("p[%d].ref", i), err)
		}
		if seen[p.F] {
			return violation("p", fmt.Errorf("duplicate party fingerprint at index %d (no self-dealing)", i))
		}
		seen[p.F] = true
	}
	switch d.Out {
	case OutcomeCompleted, OutcomePartial, OutcomeCancelled, OutcomeDisputed:
	default:
		return violation("out", fmt.Errorf("invalid outcome %q", d.Out))
	}
	if d.S != nil && len(d.S) != len(d.P) {
		return violation("s", fmt.Errorf("signature slots (%d) must match party count (%d)", len(d.S), len(d.P)))
	}
	return nil
}
