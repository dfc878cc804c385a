package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
)

func TestDocumentCipherRoundTrip(t *testing.T) {
	c := NewDocumentCipher()
	plaintext := []byte("question paper body %PDF-1.4 ...")

	key, ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.Len(t, key, 32)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := c.Decrypt(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDocumentCipherFreshKeyPerCall(t *testing.T) {
	c := NewDocumentCipher()

	key1, ct1, err := c.Encrypt([]byte("same document"))
	require.NoError(t, err)
	key2, ct2, err := c.Encrypt([]byte("same document"))
	require.NoError(t, err)

	require.NotEqual(t, key1, key2)
	require.NotEqual(t, ct1, ct2)
}

func TestDocumentCipherWrongKey(t *testing.T) {
	c := NewDocumentCipher()

	_, ciphertext, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)

	otherKey, _, err := c.Encrypt([]byte("other"))
	require.NoError(t, err)

	_, err = c.Decrypt(ciphertext, otherKey)
	require.ErrorIs(t, err, appErrors.ErrIntegrity)
}

func TestDocumentCipherCorruptedCiphertext(t *testing.T) {
	c := NewDocumentCipher()

	key, ciphertext, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = c.Decrypt(ciphertext, key)
	require.ErrorIs(t, err, appErrors.ErrIntegrity)

	_, err = c.Decrypt([]byte("short"), key)
	require.ErrorIs(t, err, appErrors.ErrIntegrity)
}
