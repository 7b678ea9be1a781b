// Package token implements the URL-safe base64 encoder (spec §4.2) and the
// token construction it feeds (spec §8's round-trip law: decoding an
// emitted token yields secret || hmac).
//
// Grounded on original_source/src/base64.c: '+' -> '-', '/' -> '_', no '='
// padding. encoding/base64's URLEncoding with NoPadding already implements
// exactly this transform, so no hand-rolled codec or third-party base64
// variant was written or imported.
package token

import (
	"encoding/base64"
	"fmt"
)

// encoding is URL-safe base64 with no padding, matching
// original_source/src/base64.c's output format exactly.
var encoding = base64.URLEncoding.WithPadding(base64.NoPadding)

// Length is the number of bytes concatenated before encoding: a 32-byte
// secret followed by a 32-byte HMAC tag.
const Length = 64

// EncodedLength is the resulting base64 string length for a 64-byte input,
// per spec §4.2 (86 characters, no padding).
const EncodedLength = 86

// Build concatenates secret and hmac (64 bytes total) and encodes the
// result as URL-safe base64 with no padding.
func Build(secret [32]byte, hmac [32]byte) string {
	var buf [Length]byte
	copy(buf[:32], secret[:])
	copy(buf[32:], hmac[:])
	return encoding.EncodeToString(buf[:])
}

// Decode reverses Build, returning the original 64-byte secret||hmac
// buffer. Used by tests to verify the round-trip law in spec §8.
func Decode(encoded string) ([Length]byte, error) {
	var out [Length]byte
	decoded, err := encoding.DecodeString(encoded)
	if err != nil {
		return out, err
	}
	if len(decoded) != Length {
		return out, fmt.Errorf("token: decoded length %d, want %d", len(decoded), Length)
	}
	copy(out[:], decoded)
	return out, nil
}
