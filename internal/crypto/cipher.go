package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
)

const documentKeySize = 32

// DocumentCipher encrypts paper documents with a single-use AES-256-GCM key.
// The ciphertext is self-describing: the random nonce is prepended so
// decryption needs only the key and the ciphertext itself.
type DocumentCipher struct{}

// NewDocumentCipher constructs the cipher unit.
func NewDocumentCipher() *DocumentCipher {
	return &DocumentCipher{}
}

// Encrypt generates a fresh random key and seals the plaintext under it.
// Keys are never reused across documents.
func (c *DocumentCipher) Encrypt(plaintext []byte) (key, ciphertext []byte, err error) {
	key = make([]byte, documentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("generate document key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("init cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	return key, append(nonce, sealed...), nil
}

// Decrypt opens a ciphertext produced by Encrypt. A key mismatch or any
// corruption of the ciphertext fails authentication and is reported as an
// integrity error.
func (c *DocumentCipher) Decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "invalid document key")
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "init gcm")
	}

	if len(ciphertext) < aesgcm.NonceSize() {
		return nil, appErrors.Clone(appErrors.ErrIntegrity, "ciphertext too short")
	}
	nonce, sealed := ciphertext[:aesgcm.NonceSize()], ciphertext[aesgcm.NonceSize():]

	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "document failed integrity verification")
	}
	return plaintext, nil
}
