package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
)

// Envelope is a message sealed under a fresh AES-256-GCM data key. The data
// key is wrapped with RSA-OAEP.
type Envelope struct {
	WrappedKey []byte
	// Ciphertext has the nonce prepended: [nonce | encrypted | tag].
	Ciphertext []byte
}

// Seal encrypts plaintext of any length to pub. aad is optional additional
// authenticated data and is also used as the OAEP label.
func (e *Engine) Seal(ctx context.Context, pub *rsa.Key, hash *hsm.HashAlgorithm, plaintext, aad []byte) (*Envelope, error) {
	dataKey := make([]byte, 32)
	if _, err := io.ReadFull(e.rand, dataKey); err != nil {
		return nil, fmt.Errorf("generate data key: %w", err)
	}
	defer clear(dataKey)

	gcm, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	wrapped, err := e.Encrypt(ctx, pub, PaddingOAEP, hash, aad, dataKey)
	if err != nil {
		return nil, fmt.Errorf("wrap data key: %w", err)
	}
	return &Envelope{
		WrappedKey: wrapped,
		Ciphertext: gcm.Seal(nonce, nonce, plaintext, aad),
	}, nil
}

// Open decrypts an envelope produced by Seal. aad must match the value used
// when sealing.
func (e *Engine) Open(ctx context.Context, priv *rsa.Key, hash *hsm.HashAlgorithm, env *Envelope, aad []byte) ([]byte, error) {
	dataKey, err := e.Decrypt(ctx, priv, PaddingOAEP, hash, aad, env.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	defer clear(dataKey)

	gcm, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(env.Ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ct := env.Ciphertext[:nonceSize], env.Ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("aes gcm decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes gcm: %w", err)
	}
	return gcm, nil
}
