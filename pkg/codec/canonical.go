// Copyright 2025 Agent Trust Protocol Contributors
//
// Canonical Codec - Deterministic JSON and CBOR encoding for ATP documents
// Per protocol section 4.1: canonical form sorts object keys recursively;
// arrays preserve order; the canonical form is the exact input to signing.

package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// DomainSeparator is the fixed ASCII prefix prepended to every signing
// payload, regardless of document type. It is the single common
// separator mandated by the protocol (per-type separators are
// explicitly rejected as mutually incompatible on the wire).
const DomainSeparator = "ATP-v1.0:"

// MaxDocumentBytes is the maximum canonical-encoded size of a document.
const MaxDocumentBytes = 16384

// Format identifies the wire encoding a document is carried in.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ContentType returns the inscription content-type string for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatCBOR:
		return "application/atp.v1+cbor"
	default:
		return "application/atp.v1+json"
	}
}

// binaryFields are the object keys whose string values are base64url
// text in the JSON/canonical-map shape, and CBOR byte strings on the
// CBOR wire. This is the "field list" the codec carries per §4.1.
var binaryFields = map[string]bool{
	"p":   true, // public key
	"f":   true, // fingerprint
	"sig": true, // signature bytes
}

var cborEncMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid canonical CBOR options: %v", err))
	}
	return m
}()

// cborDecMode decodes CBOR maps into map[string]interface{} rather than
// the library default of map[interface{}]interface{}; ATP documents are
// string-keyed at every level, and a non-string key is a decode error.
var cborDecMode = func() cbor.DecMode {
	m, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid CBOR decode options: %v", err))
	}
	return m
}()

// Doc is the generic, canonicalization-ready representation of an ATP
// document: a string-keyed map whose binary fields are base64url text.
// The Schema layer converts typed structs to/from this shape.
type Doc map[string]interface{}

// CanonicalJSON returns the canonical JSON encoding of doc: recursively
// sorted object keys, UTF-8 bytes, no extraneous whitespace. Go's
// encoding/json already sorts string-keyed map output, so canonicalizing
// nested maps/slices into that shape is sufficient.
func CanonicalJSON(doc Doc) ([]byte, error) {
	canon := canonicalizeValue(map[string]interface{}(doc))
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canon); err != nil {
		return nil, fmt.Errorf("codec: canonical json encode: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; the canonical form
	// must not carry one.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// canonicalizeValue recursively copies decoded JSON values into fresh
// maps and slices. Key order in the JSON output comes from Go sorting
// map[string]interface{} keys on Marshal; the CBOR path does not use
// this function and gets its key order from the canonical CBOR encoding
// mode.
func canonicalizeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = canonicalizeValue(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}

// CanonicalCBOR returns the deterministic CBOR encoding of doc: definite-
// length maps, lexicographically sorted keys, smallest integer form, and
// binary fields (p, f, sig) carried as CBOR byte strings rather than
// base64url text.
func CanonicalCBOR(doc Doc) ([]byte, error) {
	binarized := toBinaryForm(map[string]interface{}(doc))
	out, err := cborEncMode.Marshal(binarized)
	if err != nil {
		return nil, fmt.Errorf("codec: canonical cbor encode: %w", err)
	}
	return out, nil
}

// toBinaryForm walks a canonical map and decodes base64url text under
// binary-field keys into raw bytes, so the CBOR encoder emits byte
// strings for them.
func toBinaryForm(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			if binaryFields[k] {
				if s, ok := val.(string); ok {
					if raw, err := base64.RawURLEncoding.DecodeString(s); err == nil {
						out[k] = raw
						continue
					}
				}
			}
			out[k] = toBinaryForm(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = toBinaryForm(e)
		}
		return out
	default:
		return vv
	}
}

// fromBinaryForm is the inverse of toBinaryForm: any raw []byte value
// produced by CBOR decoding is re-encoded as base64url text so the
// result matches the JSON shape regardless of wire format, per the
// protocol's CBOR binary-field normalization rule.
func fromBinaryForm(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = fromBinaryForm(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = fromBinaryForm(e)
		}
		return out
	case []byte:
		return base64.RawURLEncoding.EncodeToString(vv)
	default:
		return vv
	}
}

// DecodeJSON decodes canonical-or-not JSON bytes into a Doc, preserving
// integer formatting for numeric fields (ts, seq, val, ...).
func DecodeJSON(raw []byte) (Doc, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: json decode: %w", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("codec: json decode: top-level value is not an object")
	}
	return Doc(normalizeNumbers(m).(map[string]interface{})), nil
}

// normalizeNumbers converts json.Number leaves into int64 where they fit
// exactly, so that downstream code can type-assert integers directly.
// Values that are not integral become float64; a json.Number that parses
// as neither is left as is (strings are passed through unchanged).
func normalizeNumbers(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		for k, val := range vv {
			vv[k] = normalizeNumbers(val)
		}
		return vv
	case []interface{}:
		for i, e := range vv {
			vv[i] = normalizeNumbers(e)
		}
		return vv
	case json.Number:
		if n, err := vv.Int64(); err == nil {
			return n
		}
		if f, err := vv.Float64(); err == nil {
			return f
		}
		return vv
	default:
		return vv
	}
}

// DecodeCBOR decodes deterministic CBOR bytes into a Doc, re-encoding
// any binary-field byte strings as base64url text so the result has the
// same shape as DecodeJSON's output.
func DecodeCBOR(raw []byte) (Doc, error) {
	var v interface{}
	if err := cborDecMode.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("codec: cbor decode: %w", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("codec: cbor decode: top-level value is not a map")
	}
	normalized := fromBinaryForm(normalizeNumbers(m))
	return Doc(normalized.(map[string]interface{})), nil
}

// Decode dispatches to DecodeJSON or DecodeCBOR based on the inscription
// content type.
func Decode(raw []byte, format Format) (Doc, error) {
	switch format {
	case FormatCBOR:
		return DecodeCBOR(raw)
	case FormatJSON:
		return DecodeJSON(raw)
	default:
		return nil, fmt.Errorf("codec: unknown format %q", format)
	}
}

// Encode produces the canonical wire bytes for doc in the given format,
// without the signing-domain prefix.
func Encode(doc Doc, format Format) ([]byte, error) {
	switch format {
	case FormatCBOR:
		return CanonicalCBOR(doc)
	case FormatJSON:
		return CanonicalJSON(doc)
	default:
		return nil, fmt.Errorf("codec: unknown format %q", format)
	}
}

// EncodeDocument encodes doc canonically and enforces the 16 KiB size
// guard. This is the function callers use to produce bytes destined for
// an inscription; it never emits an over-size document.
func EncodeDocument(doc Doc, format Format) ([]byte, error) {
	out, err := Encode(doc, format)
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDocumentBytes {
		return nil, fmt.Errorf("codec: encoded document is %d bytes, exceeds %d byte limit", len(out), MaxDocumentBytes)
	}
	return out, nil
}

// EncodeForSigning strips the "s" field (signatures are never part of
// what they cover) and returns DomainSeparator || canonical_encoding(doc
// minus s). This is the exact byte string the Ed25519 signer consumes
// and the verifier recomputes.
func EncodeForSigning(doc Doc, format Format) ([]byte, error) {
	stripped := make(Doc, len(doc))
	for k, v := range doc {
		if k == "s" {
			continue
		}
		stripped[k] = v
	}
	body, err := Encode(stripped, format)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(DomainSeparator)+len(body))
	payload = append(payload, []byte(DomainSeparator)...)
	payload = append(payload, body...)
	return payload, nil
}

// Clone returns a deep copy of doc, safe to mutate independently.
func Clone(doc Doc) Doc {
	return canonicalizeValue(map[string]interface{}(doc)).(map[string]interface{})
}
