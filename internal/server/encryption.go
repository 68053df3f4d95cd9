package server

import (
	"context"
	"encoding/binary"
	"fmt"

	"google.golang.org/grpc"

	"github.com/glinharesb/sicrypto/internal/audit"
	"github.com/glinharesb/sicrypto/internal/crypto"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/keystore"
	"github.com/glinharesb/sicrypto/internal/sig"
)

// maxPasswordIterations bounds the PBKDF2 work a single request may ask for.
const maxPasswordIterations = 10_000_000

type EncryptionServer struct {
	store  keystore.Store
	engine *crypto.Engine
	audit  *audit.Logger
	hash   *hsm.HashAlgorithm
}

// NewEncryptionServer returns the encryption and key derivation service.
// hash is used by requests that do not name one.
func NewEncryptionServer(store keystore.Store, engine *crypto.Engine, a *audit.Logger, hash *hsm.HashAlgorithm) *EncryptionServer {
	if hash == nil {
		hash = hsm.SHA256
	}
	return &EncryptionServer{
		store:  store,
		engine: engine,
		audit:  a,
		hash:   hash,
	}
}

var encryptionDesc = grpc.ServiceDesc{
	ServiceName: namespace + "Encryption",
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		unary(namespace+"Encryption", "Encrypt", (*EncryptionServer).encrypt),
		unary(namespace+"Encryption", "Decrypt", (*EncryptionServer).decrypt),
		unary(namespace+"Encryption", "Seal", (*EncryptionServer).seal),
		unary(namespace+"Encryption", "Open", (*EncryptionServer).open),
		unary(namespace+"Encryption", "DeriveKey", (*EncryptionServer).deriveKey),
		unary(namespace+"Encryption", "DeriveFromPassword", (*EncryptionServer).deriveFromPassword),
	},
}

func (s *EncryptionServer) desc() *grpc.ServiceDesc { return &encryptionDesc }

// rsaKey returns the RSA key of id. Encryption needs an active key;
// decryption also accepts rotated keys so older ciphertexts stay readable.
func (s *EncryptionServer) rsaKey(id string, encrypting bool) (*keystore.KeyEntry, error) {
	var entry *keystore.KeyEntry
	var err error
	if encrypting {
		entry, err = requireActive(s.store, id)
	} else {
		entry, err = s.store.Get(id)
		if err == nil && entry.Status == keystore.StatusDeactivated {
			err = fmt.Errorf("key %s is %s: %w", id, entry.Status, keystore.ErrKeyInactive)
		}
	}
	if err != nil {
		return nil, err
	}
	if entry.Key.RSA == nil {
		return nil, fmt.Errorf("key %s is %s, not RSA: %w", id, entry.Algorithm(), crypto.ErrUnsupportedAlgorithm)
	}
	return entry, nil
}

func (s *EncryptionServer) log(ctx context.Context, op string, entry *keystore.KeyEntry, err error) {
	s.audit.Log(audit.Record{Operation: op, KeyID: entry.ID, Algorithm: entry.Algorithm(), Peer: peerAddr(ctx), Err: err})
}

func (s *EncryptionServer) encrypt(ctx context.Context, req fields) (map[string]any, error) {
	plaintext, err := req.bytes("plaintext")
	if err != nil {
		return nil, err
	}
	label, err := req.bytes("label")
	if err != nil {
		return nil, err
	}
	pad, err := crypto.ParsePadding(req.str("padding"))
	if err != nil {
		return nil, err
	}
	hash, err := req.hash("hash", s.hash)
	if err != nil {
		return nil, err
	}
	entry, err := s.rsaKey(req.str("key_id"), true)
	if err != nil {
		return nil, err
	}

	ct, err := s.engine.Encrypt(ctx, entry.Public.RSA, pad, hash, label, plaintext)
	s.log(ctx, "Encrypt", entry, err)
	if err != nil {
		return nil, err
	}
	return map[string]any{"key_id": entry.ID, "ciphertext": ct}, nil
}

func (s *EncryptionServer) decrypt(ctx context.Context, req fields) (map[string]any, error) {
	ciphertext, err := req.bytes("ciphertext")
	if err != nil {
		return nil, err
	}
	label, err := req.bytes("label")
	if err != nil {
		return nil, err
	}
	pad, err := crypto.ParsePadding(req.str("padding"))
	if err != nil {
		return nil, err
	}
	hash, err := req.hash("hash", s.hash)
	if err != nil {
		return nil, err
	}
	entry, err := s.rsaKey(req.str("key_id"), false)
	if err != nil {
		return nil, err
	}

	pt, err := s.engine.Decrypt(ctx, entry.Key.RSA, pad, hash, label, ciphertext)
	s.log(ctx, "Decrypt", entry, err)
	if err != nil {
		return nil, err
	}
	return map[string]any{"plaintext": pt}, nil
}

func (s *EncryptionServer) seal(ctx context.Context, req fields) (map[string]any, error) {
	plaintext, err := req.bytes("plaintext")
	if err != nil {
		return nil, err
	}
	aad, err := req.bytes("aad")
	if err != nil {
		return nil, err
	}
	hash, err := req.hash("hash", s.hash)
	if err != nil {
		return nil, err
	}
	entry, err := s.rsaKey(req.str("key_id"), true)
	if err != nil {
		return nil, err
	}

	env, err := s.engine.Seal(ctx, entry.Public.RSA, hash, plaintext, aad)
	s.log(ctx, "Seal", entry, err)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"key_id":      entry.ID,
		"wrapped_key": env.WrappedKey,
		"ciphertext":  env.Ciphertext,
	}, nil
}

func (s *EncryptionServer) open(ctx context.Context, req fields) (map[string]any, error) {
	var env crypto.Envelope
	var err error
	if env.WrappedKey, err = req.bytes("wrapped_key"); err != nil {
		return nil, err
	}
	if env.Ciphertext, err = req.bytes("ciphertext"); err != nil {
		return nil, err
	}
	aad, err := req.bytes("aad")
	if err != nil {
		return nil, err
	}
	hash, err := req.hash("hash", s.hash)
	if err != nil {
		return nil, err
	}
	entry, err := s.rsaKey(req.str("key_id"), false)
	if err != nil {
		return nil, err
	}

	pt, err := s.engine.Open(ctx, entry.Key.RSA, hash, &env, aad)
	s.log(ctx, "Open", entry, err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, invalidArg("open: %v", err)
	}
	return map[string]any{"plaintext": pt}, nil
}

// secret returns the private material a stored key contributes to HKDF.
// CRT keys contribute P and Q, each prefixed with its 2 byte length.
func secret(key *sig.PrivateKey) []byte {
	switch {
	case key.RSA != nil && key.RSA.D != nil:
		return key.RSA.D
	case key.RSA != nil && key.RSA.IsCRT():
		var out []byte
		for _, f := range [][]byte{key.RSA.P, key.RSA.Q} {
			out = binary.BigEndian.AppendUint16(out, uint16(len(f)))
			out = append(out, f...)
		}
		return out
	case key.EC != nil:
		return key.EC.D
	}
	return nil
}

// deriveKey expands a stored key's private material with HKDF. Isolated
// keys have no exportable material and are refused.
func (s *EncryptionServer) deriveKey(ctx context.Context, req fields) (map[string]any, error) {
	length := req.number("length")
	if length <= 0 {
		return nil, invalidArg("length must be positive")
	}
	info, err := req.bytes("context")
	if err != nil {
		return nil, err
	}
	salt, err := req.bytes("salt")
	if err != nil {
		return nil, err
	}
	hash, err := req.hash("hash", s.hash)
	if err != nil {
		return nil, err
	}
	entry, err := requireActive(s.store, req.str("root_key_id"))
	if err != nil {
		return nil, err
	}
	ikm := secret(entry.Key)
	if ikm == nil {
		return nil, invalidArg("key %s has no derivable material", entry.ID)
	}

	derived, err := s.engine.DeriveKey(ctx, hash, ikm, salt, info, length)
	s.log(ctx, "DeriveKey", entry, err)
	if err != nil {
		return nil, err
	}
	return map[string]any{"derived_key": derived}, nil
}

func (s *EncryptionServer) deriveFromPassword(ctx context.Context, req fields) (map[string]any, error) {
	length := req.number("length")
	iterations := req.number("iterations")
	if length <= 0 {
		return nil, invalidArg("length must be positive")
	}
	if iterations <= 0 || iterations > maxPasswordIterations {
		return nil, invalidArg("iterations must be 1-%d", maxPasswordIterations)
	}
	password, err := req.bytes("password")
	if err != nil {
		return nil, err
	}
	salt, err := req.bytes("salt")
	if err != nil {
		return nil, err
	}
	hash, err := req.hash("hash", s.hash)
	if err != nil {
		return nil, err
	}

	derived, err := s.engine.DeriveFromPassword(ctx, hash, password, salt, iterations, length)
	s.audit.Log(audit.Record{Operation: "DeriveFromPassword", Algorithm: "PBKDF2-" + hash.Name, Peer: peerAddr(ctx), Err: err})
	if err != nil {
		return nil, err
	}
	return map[string]any{"derived_key": derived}, nil
}
