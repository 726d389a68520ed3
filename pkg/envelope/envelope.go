// Copyright 2025 Agent Trust Protocol Contributors
//
// Envelope - Ordinals-style inscription envelope build/parse
// The envelope carries no chain-specific logic; it only knows how to
// wrap and unwrap a byte payload in a witness script.
//
// Pushes are emitted by hand rather than through txscript.ScriptBuilder:
// the builder canonicalizes a single-byte push of 0x01 into OP_1, but
// the inscription format requires the content-type tag as a literal
// one-byte data push (01 01 on the wire, not 51).

package envelope

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// marker is the inscription protocol tag every envelope carries.
const marker = "ord"

// maxChunkBytes bounds a single witness pushdata element.
const maxChunkBytes = 520

// contentTypeTag is the envelope field tag preceding the content type.
const contentTypeTag = 0x01

// Envelope is a decoded inscription: its declared content type and
// reassembled body bytes.
type Envelope struct {
	ContentType string
	Body        []byte
}

// appendPush appends a minimal data push of data to script. Unlike
// ScriptBuilder.AddData, a single byte in 0x01..0x10 stays a data push
// instead of collapsing to a small-integer opcode.
func appendPush(script, data []byte) []byte {
	switch {
	case len(data) < txscript.OP_PUSHDATA1:
		script = append(script, byte(len(data)))
	case len(data) <= 0xff:
		script = append(script, txscript.OP_PUSHDATA1, byte(len(data)))
	default:
		script = append(script, txscript.OP_PUSHDATA2, byte(len(data)), byte(len(data)>>8))
	}
	return append(script, data...)
}

// Build emits the envelope script for payload tagged with contentType:
//
//	OP_FALSE OP_IF
//	  PUSH "ord"
//	  PUSH 0x01
//	  PUSH <content-type>
//	  OP_0
//	  PUSH <body chunk> ...
//	OP_ENDIF
//
// The body is chunked into pushes of at most 520 bytes each.
func Build(payload []byte, contentType string) ([]byte, error) {
	if contentType == "" {
		return nil, fmt.Errorf("envelope: content type required")
	}
	script := []byte{txscript.OP_FALSE, txscript.OP_IF}
	script = appendPush(script, []byte(marker))
	script = appendPush(script, []byte{contentTypeTag})
	script = appendPush(script, []byte(contentType))
	script = append(script, txscript.OP_0)
	for i := 0; i < len(payload); i += maxChunkBytes {
		end := i + maxChunkBytes
		if end > len(payload) {
			end = len(payload)
		}
		script = appendPush(script, payload[i:end])
	}
	script = append(script, txscript.OP_ENDIF)
	return script, nil
}

// Parse extracts an envelope from a single script. The marker may
// appear anywhere in script; pushes preceding it (signatures, control
// bytes) are skipped rather than rejected. The content-type tag is
// accepted in both the pushdata form (01 01 <pushdata ct>) and the bare
// form (01 <ctLen> <ct-bytes>).
func Parse(script []byte) (*Envelope, error) {
	tok := txscript.MakeScriptTokenizer(0, script)

	found := false
	for tok.Next() {
		if bytes.Equal(tok.Data(), []byte(marker)) {
			found = true
			break
		}
	}
	if !found {
		if err := tok.Err(); err != nil {
			return nil, fmt.Errorf("envelope: tokenize: %w", err)
		}
		return nil, fmt.Errorf("envelope: no %q marker", marker)
	}

	// The bare form is not valid script past the tag byte, so it has to
	// be sliced off before tokenizing resumes. A second 0x01 byte means
	// the tag itself is a one-byte data push (the pushdata form); a
	// one-byte content type would be ambiguous here and resolves as
	// pushdata.
	rest := script[tok.ByteIndex():]
	if len(rest) >= 2 && rest[0] == contentTypeTag && rest[1] != contentTypeTag {
		return parseBare(rest)
	}

	if !tok.Next() {
		return nil, fmt.Errorf("envelope: truncated after marker")
	}
	tag := tok.Data()
	if len(tag) != 1 || tag[0] != contentTypeTag {
		return nil, fmt.Errorf("envelope: unexpected content-type tag %x", tag)
	}

	if !tok.Next() {
		return nil, fmt.Errorf("envelope: truncated content type")
	}
	contentType := string(tok.Data())

	if !tok.Next() {
		return nil, fmt.Errorf("envelope: truncated body separator")
	}
	if tok.Opcode() != txscript.OP_0 || len(tok.Data()) != 0 {
		return nil, fmt.Errorf("envelope: missing body separator")
	}

	body, err := parseBody(script[tok.ByteIndex():])
	if err != nil {
		return nil, err
	}
	return &Envelope{ContentType: contentType, Body: body}, nil
}

// parseBare handles the bare content-type tag form: rest begins with
// the 0x01 tag byte, followed by a raw length byte and the content-type
// bytes, then the 0x00 body separator and the usual body pushes.
func parseBare(rest []byte) (*Envelope, error) {
	ctLen := int(rest[1])
	if len(rest) < 2+ctLen+1 {
		return nil, fmt.Errorf("envelope: truncated content type")
	}
	contentType := string(rest[2 : 2+ctLen])
	if rest[2+ctLen] != 0x00 {
		return nil, fmt.Errorf("envelope: missing body separator")
	}
	body, err := parseBody(rest[2+ctLen+1:])
	if err != nil {
		return nil, err
	}
	return &Envelope{ContentType: contentType, Body: body}, nil
}

// parseBody concatenates pushdata chunks until OP_ENDIF.
func parseBody(script []byte) ([]byte, error) {
	tok := txscript.MakeScriptTokenizer(0, script)
	var body bytes.Buffer
	for tok.Next() {
		if tok.Opcode() == txscript.OP_ENDIF {
			break
		}
		body.Write(tok.Data())
	}
	if err := tok.Err(); err != nil {
		return nil, fmt.Errorf("envelope: tokenize body: %w", err)
	}
	return body.Bytes(), nil
}

// ParseWitness tries each witness element from last to first and
// returns the first successfully parsed envelope. Elements without a
// marker or that fail to parse are silently skipped; they may be
// signature elements or control blocks.
func ParseWitness(witness [][]byte) (*Envelope, error) {
	for i := len(witness) - 1; i >= 0; i-- {
		if env, err := Parse(witness[i]); err == nil {
			return env, nil
		}
	}
	return nil, fmt.Errorf("envelope: no inscription found in witness")
}
