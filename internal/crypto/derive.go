package crypto

import (
	"context"
	"fmt"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/kdf"
	"github.com/glinharesb/sicrypto/internal/mac"
	"github.com/glinharesb/sicrypto/internal/task"
)

// DeriveKey derives length bytes from the input keying material with HKDF.
// info is used for domain separation; a nil salt means a zero salt.
func (e *Engine) DeriveKey(ctx context.Context, alg *hsm.HashAlgorithm, ikm, salt, info []byte, length int) ([]byte, error) {
	if alg == nil {
		return nil, fmt.Errorf("hkdf: %w", ErrUnsupportedAlgorithm)
	}
	if length <= 0 {
		return nil, fmt.Errorf("invalid derived key length: %d", length)
	}
	out := make([]byte, length)
	err := e.exec(ctx, "hkdf", kdf.HKDFWorkmemSize(alg), func(t *task.Task) {
		kdf.CreateHKDF(t, alg, salt, info)
	}, produce(out), ikm)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveFromPassword stretches password with PBKDF2.
func (e *Engine) DeriveFromPassword(ctx context.Context, alg *hsm.HashAlgorithm, password, salt []byte, iterations, length int) ([]byte, error) {
	if alg == nil {
		return nil, fmt.Errorf("pbkdf2: %w", ErrUnsupportedAlgorithm)
	}
	if length <= 0 {
		return nil, fmt.Errorf("invalid derived key length: %d", length)
	}
	out := make([]byte, length)
	err := e.exec(ctx, "pbkdf2", kdf.PBKDF2WorkmemSize(alg), func(t *task.Task) {
		kdf.CreatePBKDF2(t, alg, password, salt, iterations)
	}, produce(out))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MAC computes HMAC(key, parts...).
func (e *Engine) MAC(ctx context.Context, alg *hsm.HashAlgorithm, key []byte, parts ...[]byte) ([]byte, error) {
	if alg == nil {
		return nil, fmt.Errorf("hmac: %w", ErrUnsupportedAlgorithm)
	}
	out := make([]byte, alg.DigestSize)
	err := e.exec(ctx, "hmac", mac.WorkmemSize(alg), func(t *task.Task) {
		mac.CreateHMAC(t, alg, key)
	}, produce(out), parts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
