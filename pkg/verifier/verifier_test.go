package verifier

import (
	"testing"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

func signIdentity(t *testing.T, kp *crypto.KeyPair, format codec.Format) *schema.Identity {
	t.Helper()
	d := &schema.Identity{
		Base: schema.Base{V: schema.Version, T: schema.TagIdentity},
		N:    "Shrike",
		K:    []schema.Key{{T: string(crypto.AlgEd25519), P: codec.B64Encode(kp.Public)}},
	}
	doc, err := schema.ToDoc(d)
	if err != nil {
		t.Fatalf("ToDoc: %v", err)
	}
	payload, err := codec.EncodeForSigning(doc, format)
	if err != nil {
		t.Fatalf("EncodeForSigning: %v", err)
	}
	sig, err := crypto.Sign(kp.Private, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	d.S = &schema.Signature{
		F:   crypto.Fingerprint(crypto.AlgEd25519, kp.Public),
		Sig: codec.B64Encode(sig),
	}
	return d
}

func TestVerifyIdentityAcceptsValidSignature(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := signIdentity(t, kp, codec.FormatJSON)

	v := &Verifier{config: DefaultConfig()}
	if verr := v.verifyIdentity(d, codec.FormatJSON); verr != nil {
		t.Fatalf("expected valid identity, got %v", verr)
	}
}

// Property 2/4 - a document signed over its CBOR encoding verifies when
// checked against FormatCBOR, and a signature bound to one format must
// not verify when the other format is supplied.
func TestVerifyIdentityAcceptsValidCBORSignature(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := signIdentity(t, kp, codec.FormatCBOR)

	v := &Verifier{config: DefaultConfig()}
	if verr := v.verifyIdentity(d, codec.FormatCBOR); verr != nil {
		t.Fatalf("expected valid identity under FormatCBOR, got %v", verr)
	}
}

func TestVerifyIdentityRejectsCrossFormatSignature(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := signIdentity(t, kp, codec.FormatCBOR)

	v := &Verifier{config: DefaultConfig()}
	verr := v.verifyIdentity(d, codec.FormatJSON)
	if verr == nil {
		t.Fatal("a CBOR-bound signature checked against the JSON encoding must fail")
	}
	if verr.Kind != atperrors.CryptoFailure {
		t.Errorf("kind = %v, want %v", verr.Kind, atperrors.CryptoFailure)
	}
}

func TestVerifyIdentityRejectsTamperedName(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := signIdentity(t, kp, codec.FormatJSON)
	d.N = "Evil"

	v := &Verifier{config: DefaultConfig()}
	verr := v.verifyIdentity(d, codec.FormatJSON)
	if verr == nil {
		t.Fatal("expected tamper detection to fail verification")
	}
	if verr.Kind != atperrors.CryptoFailure {
		t.Errorf("kind = %v, want %v", verr.Kind, atperrors.CryptoFailure)
	}
}

func TestVerifyIdentityRejectsUnknownSignerFingerprint(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := signIdentity(t, kp, codec.FormatJSON)
	d.S.F = "not-a-real-fingerprint"

	v := &Verifier{config: DefaultConfig()}
	verr := v.verifyIdentity(d, codec.FormatJSON)
	if verr == nil || verr.Kind != atperrors.FingerprintMismatch {
		t.Fatalf("expected FingerprintMismatch, got %v", verr)
	}
}

func TestVerifyIdentityRejectsMissingSignature(t *testing.T) {
	v := &Verifier{config: DefaultConfig()}
	d := &schema.Identity{Base: schema.Base{V: schema.Version, T: schema.TagIdentity}, N: "Shrike"}
	verr := v.verifyIdentity(d, codec.FormatJSON)
	if verr == nil || verr.Kind != atperrors.SchemaViolation {
		t.Fatalf("expected SchemaViolation, got %v", verr)
	}
}

func TestSeqTrackerAcceptsIncreasingSequence(t *testing.T) {
	tr := NewSeqTracker()
	if !tr.Observe("fp1", 1) {
		t.Error("first observation should be accepted")
	}
	if !tr.Observe("fp1", 5) {
		t.Error("strictly increasing sequence should be accepted")
	}
}

func TestSeqTrackerRejectsReplay(t *testing.T) {
	tr := NewSeqTracker()
	tr.Observe("fp1", 5)
	if tr.Observe("fp1", 5) {
		t.Error("duplicate sequence must be rejected as a replay")
	}
	if tr.Observe("fp1", 4) {
		t.Error("lower sequence must be rejected as stale")
	}
}

func TestSeqTrackerIsPerFingerprint(t *testing.T) {
	tr := NewSeqTracker()
	tr.Observe("fp1", 10)
	if !tr.Observe("fp2", 1) {
		t.Error("a different fingerprint starts its own sequence")
	}
}
