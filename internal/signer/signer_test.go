package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() [KeySize]byte {
	var k [KeySize]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestSign_MatchesStdlibHMAC(t *testing.T) {
	key := testKey()
	s := New(key)

	input := []byte("hello world")
	got := s.Sign(input)

	mac := hmac.New(sha256.New, key[:])
	mac.Write(input)
	want := mac.Sum(nil)

	assert.Equal(t, want, got[:])
}

func TestSign_Deterministic(t *testing.T) {
	s := New(testKey())
	input := []byte("same input")

	a := s.Sign(input)
	b := s.Sign(input)
	assert.Equal(t, a, b)
}

func TestSign_SequentialCallsAreIndependent(t *testing.T) {
	s := New(testKey())

	a := s.Sign([]byte("first"))
	b := s.Sign([]byte("second"))
	c := s.Sign([]byte("first"))

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}

func TestClose_ZeroesKey(t *testing.T) {
	s := New(testKey())
	s.Close()

	var zero [KeySize]byte
	assert.Equal(t, zero, s.key)
}

func TestActionFromString(t *testing.T) {
	assert.Equal(t, ActionActivation, ActionFromString("activation"))
	assert.Equal(t, ActionPasswordRecovery, ActionFromString("password_recovery"))
	assert.Equal(t, ActionUnknown, ActionFromString("something_else"))
	assert.Equal(t, ActionUnknown, ActionFromString(""))
}

func TestTag(t *testing.T) {
	assert.Equal(t, int8(1), ActionActivation.Tag())
	assert.Equal(t, int8(2), ActionPasswordRecovery.Tag())
	assert.Equal(t, int8(0), ActionUnknown.Tag())
}

func TestSigningInput_Activation(t *testing.T) {
	var secret [KeySize]byte
	for i := range secret {
		secret[i] = 0xAA
	}

	input := SigningInput(ActionActivation, secret, "ignor")
	require.Len(t, input, 41)
	assert.Equal(t, "/activate", string(input[:9]))
	assert.Equal(t, secret[:], input[9:])
}

func TestSigningInput_PasswordRecovery(t *testing.T) {
	var secret [KeySize]byte
	for i := range secret {
		secret[i] = 0x55
	}

	input := SigningInput(ActionPasswordRecovery, secret, "ABCDE")
	require.Len(t, input, 45)
	assert.Equal(t, "/recover", string(input[:8]))
	assert.Equal(t, secret[:], input[8:40])
	assert.Equal(t, "ABCDE", string(input[40:]))
}

func TestSigningInput_UnknownActionIsEmpty(t *testing.T) {
	var secret [KeySize]byte
	input := SigningInput(ActionUnknown, secret, "abcde")
	assert.Empty(t, input)
}

func TestActivationAndRecoveryInputsDiffer(t *testing.T) {
	var secretA, secretB [KeySize]byte
	for i := range secretA {
		secretA[i] = 0xAA
		secretB[i] = 0x55
	}

	s := New(testKey())
	activation := s.Sign(SigningInput(ActionActivation, secretA, "ignor"))
	recovery := s.Sign(SigningInput(ActionPasswordRecovery, secretB, "ABCDE"))
	assert.NotEqual(t, activation, recovery)
}
