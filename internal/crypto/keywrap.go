package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
)

const wrapKeyBits = 2048

// WrappedFields holds the three independently encrypted secrets of one
// submission. Each field is its own RSA-OAEP ciphertext so it can be
// unwrapped on its own and fields of different lengths stay within the
// padding bound.
type WrappedFields struct {
	WrappedContentID []byte
	WrappedKey       []byte
	WrappedSetterID  []byte
}

// KeyWrapper protects the symmetric key and content identifier of a
// submission under an ephemeral keypair. A fresh RSA-2048 keypair is
// generated per wrap so each request's exposure is isolated.
type KeyWrapper struct{}

// NewKeyWrapper constructs the wrap unit.
func NewKeyWrapper() *KeyWrapper {
	return &KeyWrapper{}
}

// Wrap encrypts the content id, symmetric key and setter id under a new
// public key and returns the matching private key as unencrypted PKCS8 PEM.
// The public key is used once here and discarded.
func (w *KeyWrapper) Wrap(contentID string, symmetricKey []byte, setterID string) (*WrappedFields, []byte, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, wrapKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}

	fields := [3][]byte{[]byte(contentID), symmetricKey, []byte(setterID)}
	wrapped := make([][]byte, len(fields))
	for i, field := range fields {
		wrapped[i], err = rsa.EncryptOAEP(sha256.New(), rand.Reader, &privateKey.PublicKey, field, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("wrap field: %w", err)
		}
	}

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	return &WrappedFields{
		WrappedContentID: wrapped[0],
		WrappedKey:       wrapped[1],
		WrappedSetterID:  wrapped[2],
	}, pemBytes, nil
}

// Unwrap recovers the symmetric key and content id using the persisted
// private key. A non-matching key or malformed ciphertext is reported as an
// unwrap error.
func (w *KeyWrapper) Unwrap(fields *WrappedFields, privateKeyPEM []byte) (symmetricKey []byte, contentID string, err error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnwrap, "malformed private key pem")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnwrap.Code, appErrors.ErrUnwrap.Status, "parse private key")
	}
	privateKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, "", appErrors.Clone(appErrors.ErrUnwrap, "private key is not rsa")
	}

	symmetricKey, err = rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, fields.WrappedKey, nil)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnwrap.Code, appErrors.ErrUnwrap.Status, "unwrap symmetric key")
	}
	idBytes, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, fields.WrappedContentID, nil)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnwrap.Code, appErrors.ErrUnwrap.Status, "unwrap content id")
	}

	return symmetricKey, string(idBytes), nil
}
