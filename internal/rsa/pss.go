package rsa

import (
	"crypto/subtle"

	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/mgf1"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

var pssZeros [8]byte

// PSSWorkmemSize returns the workmem the PSS sign and verify tasks need.
func PSSWorkmemSize(alg *hsm.HashAlgorithm, key *Key) int {
	return mgf1.WorkmemSize(alg) + key.Size() + alg.DigestSize
}

type pss struct {
	alg     *hsm.HashAlgorithm
	key     *Key
	saltLen int
	sig     *Text
	in      []byte

	// em is the k byte encoding buffer; enc is EM itself, one byte shorter
	// when the modulus bit length is 1 mod 8.
	em, enc, mHash []byte
	zeroBits       int
}

func newPSS(t *task.Task, alg *hsm.HashAlgorithm, key *Key, saltLen int) *pss {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return nil
	}
	if saltLen < 0 || key.Size() == 0 {
		t.MarkFinal(status.ErrInvalidArg)
		return nil
	}
	mem, ok := t.Carve(task.Layout{mgf1.WorkmemSize(alg), key.Size(), alg.DigestSize})
	if !ok {
		return nil
	}
	p := &pss{alg: alg, key: key, saltLen: saltLen, em: mem[1], mHash: mem[2]}
	emBits := key.BitLen() - 1
	emLen := (emBits + 7) / 8
	p.enc = p.em[len(p.em)-emLen:]
	p.zeroBits = 8*emLen - emBits
	return p
}

// db and h return the masked data block and the hash inside EM.
func (p *pss) db() []byte { return p.enc[:len(p.enc)-p.alg.DigestSize-1] }
func (p *pss) h() []byte  { return p.enc[len(p.enc)-p.alg.DigestSize-1 : len(p.enc)-1] }

// CreatePSSSign configures t to sign the message it consumes with
// RSASSA-PSS under the private key, using a salt of saltLen random bytes.
// Run writes key.Size() bytes to sig.
func CreatePSSSign(t *task.Task, alg *hsm.HashAlgorithm, key *Key, saltLen int, sig *Text) {
	p := newPSSSign(t, alg, key, saltLen, sig)
	if p == nil {
		return
	}
	digest.CreateThen(t, alg, p.mHash, p.encode)
}

// CreatePSSSignDigest is CreatePSSSign for a message digest computed by
// the caller.
func CreatePSSSignDigest(t *task.Task, alg *hsm.HashAlgorithm, key *Key, saltLen int, sig *Text) {
	p := newPSSSign(t, alg, key, saltLen, sig)
	if p == nil {
		return
	}
	digest.AcceptDigest(t, alg, p.mHash, p.encode)
}

func newPSSSign(t *task.Task, alg *hsm.HashAlgorithm, key *Key, saltLen int, sig *Text) *pss {
	p := newPSS(t, alg, key, saltLen)
	if p == nil {
		return nil
	}
	if len(p.enc) < alg.DigestSize+saltLen+2 {
		t.MarkFinal(status.ErrInputBufferTooSmall)
		return nil
	}
	if len(sig.Buf) < len(p.em) {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return nil
	}
	p.sig = sig
	return p
}

// encode draws the salt straight into the tail of DB.
func (p *pss) encode(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	db := p.db()
	salt := db[len(db)-p.saltLen:]
	t.RunAfter(p.hashSalted)
	t.AwaitRandom(salt)
	return t.Code()
}

// hashSalted computes H = Hash(0x00*8 | mHash | salt) into place.
func (p *pss) hashSalted(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	db := p.db()
	digest.Create(t, p.alg)
	t.Consume(pssZeros[:])
	t.Consume(p.mHash)
	t.Consume(db[len(db)-p.saltLen:])
	t.RunAfter(p.maskDB)
	t.Produce(p.h())
	return t.Code()
}

// maskDB completes DB = PS | 0x01 | salt and masks it with MGF1(H).
func (p *pss) maskDB(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	db := p.db()
	sep := len(db) - p.saltLen - 1
	clear(db[:sep])
	db[sep] = 0x01
	mgf1.CreateXOR(t, p.alg)
	t.Consume(p.h())
	t.RunAfter(p.sign)
	t.Produce(db)
	return t.Code()
}

func (p *pss) sign(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	p.enc[0] &= 0xFF >> p.zeroBits
	p.enc[len(p.enc)-1] = 0xBC
	clear(p.em[:len(p.em)-len(p.enc)])
	k := len(p.em)
	modExp{key: p.key, private: true, invalid: status.ErrInvalidArg}.start(t, p.em, p.sig.Buf[:k], func(t *task.Task) status.Code {
		p.sig.Len = k
		return status.OK
	})
	return t.Code()
}

// CreatePSSVerify configures t to check signature over the message it
// consumes. Run ends in OK or ErrInvalidSignature.
func CreatePSSVerify(t *task.Task, alg *hsm.HashAlgorithm, key *Key, saltLen int, signature []byte) {
	p := newPSS(t, alg, key, saltLen)
	if p == nil {
		return
	}
	p.in = signature
	digest.CreateThen(t, alg, p.mHash, p.open)
}

// CreatePSSVerifyDigest is CreatePSSVerify for a message digest computed by
// the caller.
func CreatePSSVerifyDigest(t *task.Task, alg *hsm.HashAlgorithm, key *Key, saltLen int, signature []byte) {
	p := newPSS(t, alg, key, saltLen)
	if p == nil {
		return
	}
	p.in = signature
	digest.AcceptDigest(t, alg, p.mHash, p.open)
}

// open recovers EM from the signature.
func (p *pss) open(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	if len(p.in) > len(p.em) {
		return t.MarkFinal(status.ErrInvalidSignature)
	}
	modExp{key: p.key, invalid: status.ErrInvalidSignature}.start(t, p.in, p.em, p.unmask)
	return t.Code()
}

func (p *pss) unmask(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	hLen := p.alg.DigestSize
	lead := p.em[:len(p.em)-len(p.enc)]
	if len(p.enc) < hLen+p.saltLen+2 ||
		p.enc[len(p.enc)-1] != 0xBC ||
		p.enc[0]&^(0xFF>>p.zeroBits) != 0 ||
		(len(lead) > 0 && lead[0] != 0) {
		return t.MarkFinal(status.ErrInvalidSignature)
	}
	mgf1.CreateXOR(t, p.alg)
	t.Consume(p.h())
	t.RunAfter(p.check)
	t.Produce(p.db())
	return t.Code()
}

// check validates DB = PS | 0x01 | salt and recomputes H' over the salt.
// H' replaces mHash once fed to the hash.
func (p *pss) check(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	db := p.db()
	db[0] &= 0xFF >> p.zeroBits
	sep := len(db) - p.saltLen - 1
	for _, b := range db[:sep] {
		if b != 0 {
			return t.MarkFinal(status.ErrInvalidSignature)
		}
	}
	if db[sep] != 0x01 {
		return t.MarkFinal(status.ErrInvalidSignature)
	}
	digest.Create(t, p.alg)
	t.Consume(pssZeros[:])
	t.Consume(p.mHash)
	t.Consume(db[sep+1:])
	t.RunAfter(p.compare)
	t.Produce(p.mHash)
	return t.Code()
}

func (p *pss) compare(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	if subtle.ConstantTimeCompare(p.mHash, p.h()) != 1 {
		return t.MarkFinal(status.ErrInvalidSignature)
	}
	return status.OK
}
