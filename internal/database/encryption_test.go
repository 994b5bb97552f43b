package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncryptor(t *testing.T) *encryptor {
	t.Helper()
	key, err := deriveKey(strings.Repeat("k", 40))
	require.NoError(t, err)
	enc, err := newEncryptorWithKey(key)
	require.NoError(t, err)
	return enc
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc := testEncryptor(t)

	sealed, err := enc.Encrypt(testEndpoint)
	require.NoError(t, err)
	assert.NotEqual(t, testEndpoint, sealed)

	again, err := enc.Encrypt(testEndpoint)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces are random")

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, testEndpoint, plain)
}

func TestEncryptor_PlainRowsPassThrough(t *testing.T) {
	enc := testEncryptor(t)

	plain, err := enc.Decrypt(testEndpoint)
	require.NoError(t, err)
	assert.Equal(t, testEndpoint, plain)
}

func TestEncryptor_Disabled(t *testing.T) {
	enc := &encryptor{}

	out, err := enc.Encrypt("x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestDeriveKey_Validation(t *testing.T) {
	_, err := deriveKey("")
	assert.Error(t, err)
	_, err = deriveKey("short")
	assert.Error(t, err)
}

func TestEncryptor_TamperedCiphertext(t *testing.T) {
	enc := testEncryptor(t)
	sealed, err := enc.Encrypt(testEndpoint)
	require.NoError(t, err)

	_, err = enc.Decrypt(sealed[:len(sealed)-4] + "AAAA")
	assert.Error(t, err)
}
