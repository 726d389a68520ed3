// Copyright 2025 Agent Trust Protocol Contributors
//
// Verifier - Per-variant verification pipeline
// Dispatches on t, runs schema, payload binding, signature, and chain
// state checks, and reports a structured result rather than a bare
// error so partial information (timestamp drift, missing Explorer)
// survives a successful verification.

package verifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/atp-protocol/atp-engine/pkg/atperrors"
	"github.com/atp-protocol/atp-engine/pkg/codec"
	"github.com/atp-protocol/atp-engine/pkg/crypto"
	"github.com/atp-protocol/atp-engine/pkg/explorer"
	"github.com/atp-protocol/atp-engine/pkg/metrics"
	"github.com/atp-protocol/atp-engine/pkg/resolver"
	"github.com/atp-protocol/atp-engine/pkg/schema"
)

// Result is the outcome of verifying one document. Valid is true iff
// every fatal check passed; Warnings carry non-fatal findings such as
// timestamp drift. Err is set iff Valid is false.
type Result struct {
	Valid    bool
	Tag      string
	Warnings []string
	Err      *atperrors.Error
}

func fail(tag string, err *atperrors.Error) *Result {
	return &Result{Valid: false, Tag: tag, Err: err}
}

func ok(tag string, warnings ...string) *Result {
	return &Result{Valid: true, Tag: tag, Warnings: warnings}
}

// Config holds verifier policy toggles.
type Config struct {
	// TimestampDriftTolerance is the window within which ts is not
	// flagged. Exceeding it is a warning, never fatal.
	TimestampDriftTolerance time.Duration

	// RequireExplorer, when true, makes the revoked-chain check on
	// supersessions and heartbeats fatal when no Explorer client is
	// configured, instead of skipping it.
	RequireExplorer bool

	Logger *log.Logger
}

// DefaultConfig returns the ±2h timestamp drift tolerance named in the
// protocol's timestamp check.
func DefaultConfig() *Config {
	return &Config{
		TimestampDriftTolerance: 2 * time.Hour,
		Logger:                  log.New(log.Writer(), "[Verifier] ", log.LstdFlags),
	}
}

// Verifier verifies ATP documents. It holds no per-document state
// across calls; heartbeat sequence tracking is the caller's
// responsibility via SeqTracker.
type Verifier struct {
	resolver *resolver.Resolver
	explorer *explorer.Client
	config   *Config
	metrics  *metrics.Metrics
}

// New constructs a Verifier. explorerClient may be nil; chain-walk
// dependent checks (poison-pill revocation, att-revoke history) then
// fall back to the direct-signer-only path the protocol specifies for
// that case.
func New(res *resolver.Resolver, explorerClient *explorer.Client, cfg *Config, m *metrics.Metrics) *Verifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Verifier] ", log.LstdFlags)
	}
	return &Verifier{resolver: res, explorer: explorerClient, config: cfg, metrics: m}
}

// Verify runs doc (already decoded from its wire format) through the
// full pipeline: size guard, schema parse (which covers the version
// check), timestamp warning, and variant-specific signature/chain
// checks.
func (v *Verifier) Verify(ctx context.Context, doc codec.Doc, format codec.Format) (*Result, error) {
	tag, _ := schema.Tag(doc)
	if v.metrics != nil {
		v.metrics.VerifyAttempts.WithLabelValues(tag).Inc()
	}

	res, err := v.verify(ctx, doc, format)
	if v.metrics != nil && res != nil && !res.Valid && res.Err != nil {
		v.metrics.VerifyFailures.WithLabelValues(tag, string(res.Err.Kind)).Inc()
	}
	return res, err
}

func (v *Verifier) verify(ctx context.Context, doc codec.Doc, format codec.Format) (*Result, error) {
	encoded, err := codec.Encode(doc, format)
	if err != nil {
		return fail("", atperrors.New(atperrors.CodecError, "", err)), nil
	}
	if len(encoded) > codec.MaxDocumentBytes {
		return fail("", atperrors.New(atperrors.InvalidInput, "", fmt.Errorf("encoded document is %d bytes, exceeds %d byte limit", len(encoded), codec.MaxDocumentBytes))), nil
	}

	parsed, perr := schema.Parse(doc)
	if perr != nil {
		aerr, _ := perr.(*atperrors.Error)
		if aerr == nil {
			aerr = atperrors.New(atperrors.SchemaViolation, "", perr)
		}
		return fail("", aerr), nil
	}

	tag, _ := schema.Tag(doc)
	var warnings []string
	if ts := timestampOf(parsed); ts != nil {
		drift := time.Since(time.Unix(*ts, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > v.config.TimestampDriftTolerance {
			warnings = append(warnings, fmt.Sprintf("timestamp drift %s exceeds tolerance %s", drift, v.config.TimestampDriftTolerance))
		}
	}

	var verr *atperrors.Error
	switch d := parsed.(type) {
	case *schema.Identity:
		verr = v.verifyIdentity(d, format)
	case *schema.Supersession:
		verr = v.verifySupersession(ctx, d, format)
	case *schema.Revocation:
		verr = v.verifyRevocation(ctx, d, format)
	case *schema.Attestation:
		verr = v.verifyAttestation(ctx, d, format)
	case *schema.AttestationRevocation:
		verr = v.verifyAttestationRevocation(ctx, d, format)
	case *schema.Heartbeat:
		verr = v.verifyHeartbeat(ctx, d, format)
	case *schema.Receipt:
		verr = v.verifyReceipt(ctx, d, format)
	default:
		verr = atperrors.New(atperrors.SchemaViolation, "t", fmt.Errorf("unhandled variant %T", parsed))
	}

	if verr != nil {
		return fail(tag, verr), nil
	}
	return ok(tag, warnings...), nil
}

func timestampOf(parsed interface{}) *int64 {
	switch d := parsed.(type) {
	case *schema.Identity:
		return d.TS
	case *schema.Supersession:
		return d.TS
	case *schema.Revocation:
		return d.TS
	case *schema.Attestation:
		return d.TS
	case *schema.AttestationRevocation:
		return d.TS
	case *schema.Heartbeat:
		return d.TS
	case *schema.Receipt:
		return d.TS
	default:
		return nil
	}
}

// fingerprintOf computes the fingerprint of a key object, propagating a
// decode failure as a SchemaViolation rather than panicking.
func fingerprintOf(k schema.Key) (string, *atperrors.Error) {
	pub, err := codec.B64Decode(k.P)
	if err != nil {
		return "", atperrors.New(atperrors.SchemaViolation, "k.p", err)
	}
	return crypto.Fingerprint(crypto.Algorithm(k.T), pub), nil
}

// verifySignature checks sig.Sig over the signing payload of parsed
// (EncodeForSigning strips the s field regardless of its shape) under
// the given key, reporting CryptoFailure on mismatch. format must be
// the wire encoding the document was actually signed over: a document
// inscribed as CBOR carries a signature bound to its CBOR bytes, not
// its JSON form, so the two are not interchangeable here.
func verifySignature(parsed interface{}, sig schema.Signature, key schema.Key, format codec.Format) *atperrors.Error {
	doc, err := schema.ToDoc(parsed)
	if err != nil {
		return atperrors.New(atperrors.CodecError, "", err)
	}
	payload, err := codec.EncodeForSigning(doc, format)
	if err != nil {
		return atperrors.New(atperrors.CodecError, "", err)
	}
	pub, err := codec.B64Decode(key.P)
	if err != nil {
		return atperrors.New(atperrors.SchemaViolation, "k.p", err)
	}
	sigBytes, err := codec.B64Decode(sig.Sig)
	if err != nil {
		return atperrors.New(atperrors.SchemaViolation, "s.sig", err)
	}
	if !crypto.Verify(pub, payload, sigBytes) {
		return atperrors.New(atperrors.CryptoFailure, "s.sig", fmt.Errorf("signature does not verify"))
	}
	return nil
}
