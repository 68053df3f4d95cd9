package hsm

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/glinharesb/sicrypto/internal/status"
)

// HashAlgorithm describes a hash the hash engine can run.
type HashAlgorithm struct {
	Name       string
	DigestSize int
	BlockSize  int

	newHash  func() hash.Hash
	newShake func() sha3.ShakeHash
}

var (
	SHA1     = &HashAlgorithm{Name: "SHA-1", DigestSize: 20, BlockSize: 64, newHash: sha1.New}
	SHA224   = &HashAlgorithm{Name: "SHA-224", DigestSize: 28, BlockSize: 64, newHash: sha256.New224}
	SHA256   = &HashAlgorithm{Name: "SHA-256", DigestSize: 32, BlockSize: 64, newHash: sha256.New}
	SHA384   = &HashAlgorithm{Name: "SHA-384", DigestSize: 48, BlockSize: 128, newHash: sha512.New384}
	SHA512   = &HashAlgorithm{Name: "SHA-512", DigestSize: 64, BlockSize: 128, newHash: sha512.New}
	SHA3_224 = &HashAlgorithm{Name: "SHA3-224", DigestSize: 28, BlockSize: 144, newHash: sha3.New224}
	SHA3_256 = &HashAlgorithm{Name: "SHA3-256", DigestSize: 32, BlockSize: 136, newHash: sha3.New256}
	SHA3_384 = &HashAlgorithm{Name: "SHA3-384", DigestSize: 48, BlockSize: 104, newHash: sha3.New384}
	SHA3_512 = &HashAlgorithm{Name: "SHA3-512", DigestSize: 64, BlockSize: 72, newHash: sha3.New512}
	// SHAKE256 with the 114 byte output Ed448 uses.
	SHAKE256 = &HashAlgorithm{Name: "SHAKE256", DigestSize: 114, BlockSize: 136, newShake: sha3.NewShake256}
)

var hashes = map[string]*HashAlgorithm{}

func init() {
	for _, h := range []*HashAlgorithm{SHA1, SHA224, SHA256, SHA384, SHA512,
		SHA3_224, SHA3_256, SHA3_384, SHA3_512, SHAKE256} {
		hashes[h.Name] = h
	}
}

// HashByName looks up a hash algorithm by name, e.g. "SHA-256".
func HashByName(name string) (*HashAlgorithm, bool) {
	h, ok := hashes[name]
	return h, ok
}

func (a *HashAlgorithm) String() string { return a.Name }

// New starts a hash computation.
func (a *HashAlgorithm) New() *HashContext {
	c := &HashContext{alg: a}
	c.reset()
	return c
}

// HashContext is one running hash computation.
type HashContext struct {
	alg   *HashAlgorithm
	h     hash.Hash
	shake sha3.ShakeHash
}

// HashState is a checkpoint of a HashContext.
type HashState struct {
	alg   *HashAlgorithm
	data  []byte
	shake sha3.ShakeHash
}

func (c *HashContext) reset() {
	if c.alg.newShake != nil {
		c.shake = c.alg.newShake()
		return
	}
	c.h = c.alg.newHash()
}

func (c *HashContext) Algorithm() *HashAlgorithm { return c.alg }

// Feed appends p to the hashed data.
func (c *HashContext) Feed(p []byte) {
	if c.shake != nil {
		c.shake.Write(p)
		return
	}
	c.h.Write(p)
}

// Digest writes the digest to out, which must hold DigestSize bytes.
func (c *HashContext) Digest(out []byte) status.Code {
	if len(out) < c.alg.DigestSize {
		return status.ErrOutputBufferTooSmall
	}
	if c.shake != nil {
		if _, err := c.shake.Clone().Read(out[:c.alg.DigestSize]); err != nil {
			return status.ErrHardware
		}
		return status.OK
	}
	c.h.Sum(out[:0])
	return status.OK
}

// SaveState checkpoints the context so it can be resumed later.
func (c *HashContext) SaveState() (HashState, status.Code) {
	if c.shake != nil {
		return HashState{alg: c.alg, shake: c.shake.Clone()}, status.OK
	}
	m, ok := c.h.(encoding.BinaryMarshaler)
	if !ok {
		return HashState{}, status.ErrNotSupported
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return HashState{}, status.ErrHardware
	}
	return HashState{alg: c.alg, data: data}, status.OK
}

// ResumeState restores a checkpoint taken with SaveState.
func (c *HashContext) ResumeState(s HashState) status.Code {
	if s.alg != c.alg {
		return status.ErrInvalidArg
	}
	if s.shake != nil {
		c.shake = s.shake.Clone()
		return status.OK
	}
	h := c.alg.newHash()
	u, ok := h.(encoding.BinaryUnmarshaler)
	if !ok {
		return status.ErrNotSupported
	}
	if err := u.UnmarshalBinary(s.data); err != nil {
		return status.ErrInvalidArg
	}
	c.h = h
	return status.OK
}
