package rsa

import (
	"crypto/subtle"

	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// digestInfoPrefix holds the DER encoding of DigestInfo up to the digest
// octets (RFC 8017 section 9.2, note 1).
var digestInfoPrefix = map[*hsm.HashAlgorithm][]byte{
	hsm.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	hsm.SHA224: {0x30, 0x2d, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x04, 0x05, 0x00, 0x04, 0x1c},
	hsm.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	hsm.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	hsm.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// PKCS1v15SigWorkmemSize returns the workmem the PKCS#1 v1.5 signature
// tasks need.
func PKCS1v15SigWorkmemSize(alg *hsm.HashAlgorithm, key *Key) int {
	return key.Size() + alg.DigestSize
}

type pkcs1v15Sig struct {
	alg    *hsm.HashAlgorithm
	key    *Key
	prefix []byte
	sig    *Text
	in     []byte

	em, h []byte
}

func newPKCS1v15Sig(t *task.Task, alg *hsm.HashAlgorithm, key *Key) *pkcs1v15Sig {
	prefix, ok := digestInfoPrefix[alg]
	if !ok {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return nil
	}
	k := key.Size()
	if k < len(prefix)+alg.DigestSize+11 {
		t.MarkFinal(status.ErrInputBufferTooSmall)
		return nil
	}
	mem, ok := t.Carve(task.Layout{k, alg.DigestSize})
	if !ok {
		return nil
	}
	return &pkcs1v15Sig{alg: alg, key: key, prefix: prefix, em: mem[0], h: mem[1]}
}

// CreatePKCS1v15Sign configures t to sign the message it consumes with
// RSASSA-PKCS1-v1_5. Run writes key.Size() bytes to sig.
func CreatePKCS1v15Sign(t *task.Task, alg *hsm.HashAlgorithm, key *Key, sig *Text) {
	s := newPKCS1v15Sign(t, alg, key, sig)
	if s == nil {
		return
	}
	digest.CreateThen(t, alg, s.h, s.sign)
}

// CreatePKCS1v15SignDigest signs a digest computed by the caller.
func CreatePKCS1v15SignDigest(t *task.Task, alg *hsm.HashAlgorithm, key *Key, sig *Text) {
	s := newPKCS1v15Sign(t, alg, key, sig)
	if s == nil {
		return
	}
	digest.AcceptDigest(t, alg, s.h, s.sign)
}

func newPKCS1v15Sign(t *task.Task, alg *hsm.HashAlgorithm, key *Key, sig *Text) *pkcs1v15Sig {
	s := newPKCS1v15Sig(t, alg, key)
	if s == nil {
		return nil
	}
	if len(sig.Buf) < len(s.em) {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return nil
	}
	s.sig = sig
	return s
}

// encode writes EM = 0x00 | 0x01 | 0xFF.. | 0x00 | DigestInfo | H into dst.
func (s *pkcs1v15Sig) encode(dst []byte) {
	tLen := len(s.prefix) + len(s.h)
	dst[0] = 0x00
	dst[1] = 0x01
	for i := 2; i < len(dst)-tLen-1; i++ {
		dst[i] = 0xFF
	}
	dst[len(dst)-tLen-1] = 0x00
	copy(dst[len(dst)-tLen:], s.prefix)
	copy(dst[len(dst)-len(s.h):], s.h)
}

func (s *pkcs1v15Sig) sign(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	s.encode(s.em)
	k := len(s.em)
	modExp{key: s.key, private: true, invalid: status.ErrInvalidArg}.start(t, s.em, s.sig.Buf[:k], func(t *task.Task) status.Code {
		s.sig.Len = k
		return status.OK
	})
	return t.Code()
}

// CreatePKCS1v15Verify configures t to check signature over the message it
// consumes. Run ends in OK or ErrInvalidSignature.
func CreatePKCS1v15Verify(t *task.Task, alg *hsm.HashAlgorithm, key *Key, signature []byte) {
	s := newPKCS1v15Sig(t, alg, key)
	if s == nil {
		return
	}
	s.in = signature
	digest.CreateThen(t, alg, s.h, s.open)
}

// CreatePKCS1v15VerifyDigest checks signature over a digest computed by
// the caller.
func CreatePKCS1v15VerifyDigest(t *task.Task, alg *hsm.HashAlgorithm, key *Key, signature []byte) {
	s := newPKCS1v15Sig(t, alg, key)
	if s == nil {
		return
	}
	s.in = signature
	digest.AcceptDigest(t, alg, s.h, s.open)
}

func (s *pkcs1v15Sig) open(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	if len(s.in) != len(s.em) {
		return t.MarkFinal(status.ErrInvalidSignature)
	}
	modExp{key: s.key, invalid: status.ErrInvalidSignature}.start(t, s.in, s.em, s.compare)
	return t.Code()
}

// compare checks the recovered EM piecewise against the expected encoding.
func (s *pkcs1v15Sig) compare(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	em := s.em
	tLen := len(s.prefix) + len(s.h)
	ok := subtle.ConstantTimeByteEq(em[0], 0x00)
	ok &= subtle.ConstantTimeByteEq(em[1], 0x01)
	for _, b := range em[2 : len(em)-tLen-1] {
		ok &= subtle.ConstantTimeByteEq(b, 0xFF)
	}
	ok &= subtle.ConstantTimeByteEq(em[len(em)-tLen-1], 0x00)
	ok &= subtle.ConstantTimeCompare(em[len(em)-tLen:len(em)-len(s.h)], s.prefix)
	ok &= subtle.ConstantTimeCompare(em[len(em)-len(s.h):], s.h)
	if ok != 1 {
		return t.MarkFinal(status.ErrInvalidSignature)
	}
	return status.OK
}
