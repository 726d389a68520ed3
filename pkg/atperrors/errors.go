// Copyright 2025 Agent Trust Protocol Contributors
//
// Error Taxonomy - Typed error kinds for the ATP document engine
// Every fatal condition the engine can report is one of these kinds;
// nothing is retried silently by the core.

package atperrors

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure a caller must branch on.
type Kind string

const (
	// InvalidInput is a malformed argument: non-hex TXID, oversize
	// document, wrong content type.
	InvalidInput Kind = "invalid_input"

	// SchemaViolation is a structural or cross-field constraint failure.
	SchemaViolation Kind = "schema_violation"

	// CodecError means the bytes could not be decoded, or a canonical
	// encoding could not be produced.
	CodecError Kind = "codec_error"

	// CryptoFailure means a signature did not verify.
	CryptoFailure Kind = "crypto_failure"

	// FingerprintMismatch means s.f or target.f does not match the
	// resolved key.
	FingerprintMismatch Kind = "fingerprint_mismatch"

	// UnresolvableReference means the RPC returned no transaction, or
	// the witness carried no inscription.
	UnresolvableReference Kind = "unresolvable_reference"

	// ChainStateViolation means the target of a document is revoked, or
	// first-seen ordering rejects this entry.
	ChainStateViolation Kind = "chain_state_violation"

	// NetworkUnavailable means RPC or Explorer timed out or was
	// unreachable.
	NetworkUnavailable Kind = "network_unavailable"

	// ExplorerInconsistency means the Explorer's claimed fingerprint
	// disagrees with the on-chain document.
	ExplorerInconsistency Kind = "explorer_inconsistency"

	// NotAuthorized means the signer was not found in the target's
	// supersession chain (for revoke/att-revoke without Explorer).
	NotAuthorized Kind = "not_authorized"
)

// Error is the single error type the engine returns. Field names the
// offending field or fingerprint when applicable.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, atperrors.New(kind, "", nil)) to match any
// *Error of the same Kind, regardless of Field or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, field string, err error) *Error {
	return &Error{Kind: kind, Field: field, Err: err}
}

// Of reports whether err, or any error it wraps, is an *Error of kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
