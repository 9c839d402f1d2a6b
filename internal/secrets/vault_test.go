package secrets

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	return key
}

func TestNewVault_ValidKey(t *testing.T) {
	t.Parallel()

	v, err := NewVault(validKey(t))
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestNewVault_InvalidKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		keyLen int
	}{
		{name: "too short", keyLen: 16},
		{name: "too long", keyLen: 64},
		{name: "empty", keyLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := NewVault(make([]byte, tt.keyLen))
			assert.Nil(t, v)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestEncryptDecryptBytes_RoundTrip(t *testing.T) {
	t.Parallel()

	v, err := NewVault(validKey(t))
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "csv attachment", plaintext: []byte("supplier_id,name\nS-001,Acme Steel\n")},
		{name: "empty", plaintext: []byte{}},
		{name: "binary", plaintext: []byte{0x00, 0xff, 0x10, 0x80}},
		{name: "large", plaintext: bytes.Repeat([]byte("x"), 64<<10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sealed, encErr := v.EncryptBytes(tt.plaintext)
			require.NoError(t, encErr)
			assert.Len(t, sealed, len(tt.plaintext)+12+16)

			opened, decErr := v.DecryptBytes(sealed)
			require.NoError(t, decErr)
			assert.Equal(t, len(tt.plaintext), len(opened))
			assert.True(t, bytes.Equal(tt.plaintext, opened))
		})
	}
}

func TestEncryptBytes_RandomNonce(t *testing.T) {
	t.Parallel()

	v, err := NewVault(validKey(t))
	require.NoError(t, err)

	a, err := v.EncryptBytes([]byte("same content"))
	require.NoError(t, err)
	b, err := v.EncryptBytes([]byte("same content"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecryptBytes_Rejects(t *testing.T) {
	t.Parallel()

	v, err := NewVault(validKey(t))
	require.NoError(t, err)

	sealed, err := v.EncryptBytes([]byte("original content"))
	require.NoError(t, err)

	tampered := bytes.Clone(sealed)
	tampered[13] ^= 0xFF

	other, err := NewVault(validKey(t))
	require.NoError(t, err)

	t.Run("too short", func(t *testing.T) {
		t.Parallel()
		_, err := v.DecryptBytes([]byte("short"))
		assert.ErrorIs(t, err, ErrCiphertextTooShort)
	})

	t.Run("tampered", func(t *testing.T) {
		t.Parallel()
		out, err := v.DecryptBytes(tampered)
		require.Error(t, err)
		assert.Nil(t, out)
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		_, err := other.DecryptBytes(sealed)
		require.Error(t, err)
	})
}
