// Package signer computes the HMAC-SHA256 token signatures mailroom emits.
//
// Grounded on original_source/src/hmac.c: the key is installed once, at
// process startup, and every Sign call re-keys a fresh MAC rather than
// reusing mutable state, mirroring the "reinitialize with the original
// key" contract there. crypto/hmac and crypto/sha256 are the standard
// library's own HMAC implementation — see DESIGN.md for why no
// third-party crypto dependency was considered.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
)

// KeySize is the length, in bytes, of the HMAC key and of the "secret"
// field carried on each pending action.
const KeySize = 32

// Size is the length, in bytes, of a computed HMAC-SHA256 tag.
const Size = sha256.Size

const (
	activationPrefix = "/activate"
	recoveryPrefix   = "/recover"
	codeLength       = 5
)

// Signer holds the process signing key for its lifetime.
type Signer struct {
	key [KeySize]byte
}

// New installs key as the process-lifetime signing key.
func New(key [KeySize]byte) *Signer {
	return &Signer{key: key}
}

// Sign computes HMAC-SHA256(key, input). Synchronous, deterministic, and
// reentrant only from a single goroutine — satisfied by construction since
// the event loop that calls it is single-threaded (spec §5).
func (s *Signer) Sign(input []byte) [Size]byte {
	mac := hmac.New(sha256.New, s.key[:])
	mac.Write(input)

	var out [Size]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Close zeroes the signing key. Must be called exactly once, during
// shutdown, after the event loop has stopped using the Signer.
func (s *Signer) Close() {
	for i := range s.key {
		s.key[i] = 0
	}
}

// Action identifies what kind of pending action a token row represents.
type Action int8

const (
	ActionUnknown          Action = 0
	ActionActivation       Action = 1
	ActionPasswordRecovery Action = 2
)

// Tag returns the numeric CSV field value for a, per spec §4.3.
func (a Action) Tag() int8 { return int8(a) }

// ActionFromString maps the store's textual action column to an Action,
// per original_source/src/db.c's string comparison.
func ActionFromString(s string) Action {
	switch s {
	case "activation":
		return ActionActivation
	case "password_recovery":
		return ActionPasswordRecovery
	default:
		return ActionUnknown
	}
}

// SigningInput builds the exact byte sequence fed to Sign for a row, per
// spec §4.1. Any action other than activation/password_recovery yields an
// empty slice — callers must already have filtered such rows out before
// calling Sign (spec: "the row must be skipped by the Event Loop before
// reaching the Signer").
func SigningInput(action Action, secret [KeySize]byte, code string) []byte {
	switch action {
	case ActionActivation:
		buf := make([]byte, 0, len(activationPrefix)+KeySize)
		buf = append(buf, activationPrefix...)
		buf = append(buf, secret[:]...)
		return buf
	case ActionPasswordRecovery:
		buf := make([]byte, 0, len(recoveryPrefix)+KeySize+codeLength)
		buf = append(buf, recoveryPrefix...)
		buf = append(buf, secret[:]...)
		buf = append(buf, code...)
		return buf
	default:
		return nil
	}
}
