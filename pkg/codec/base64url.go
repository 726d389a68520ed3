// Copyright 2025 Agent Trust Protocol Contributors

package codec

import "encoding/base64"

// B64Encode returns the base64url (no padding) encoding of b.
func B64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// B64Decode decodes a base64url (no padding) string.
func B64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
