package crypto

import (
	"context"

	"github.com/glinharesb/sicrypto/internal/sig"
	"github.com/glinharesb/sicrypto/internal/task"
)

// Sign signs msg with key and returns the fixed size signature encoding.
func (e *Engine) Sign(ctx context.Context, key *sig.PrivateKey, msg []byte) ([]byte, error) {
	out := make([]byte, sig.SignatureSize(key))
	err := e.exec(ctx, "sign", key.Def.SignWorkmemSize(key), func(t *task.Task) {
		sig.CreateSign(t, key, out)
	}, run, msg)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SignDigest signs a precomputed digest of key.Hash.
func (e *Engine) SignDigest(ctx context.Context, key *sig.PrivateKey, digest []byte) ([]byte, error) {
	out := make([]byte, sig.SignatureSize(key))
	err := e.exec(ctx, "sign digest", key.Def.SignWorkmemSize(key), func(t *task.Task) {
		sig.CreateSignDigest(t, key, out)
	}, run, digest)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Verify checks signature over msg. A mismatch is reported as an error
// wrapping status.ErrInvalidSignature.
func (e *Engine) Verify(ctx context.Context, key *sig.PublicKey, msg, signature []byte) error {
	return e.exec(ctx, "verify", key.Def.VerifyWorkmemSize(key), func(t *task.Task) {
		sig.CreateVerify(t, key, signature)
	}, run, msg)
}

// VerifyDigest checks signature over a precomputed digest.
func (e *Engine) VerifyDigest(ctx context.Context, key *sig.PublicKey, digest, signature []byte) error {
	return e.exec(ctx, "verify digest", key.Def.VerifyWorkmemSize(key), func(t *task.Task) {
		sig.CreateVerifyDigest(t, key, signature)
	}, run, digest)
}
