package rsa

import (
	"crypto/subtle"

	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/mgf1"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// OAEPEncryptWorkmemSize returns the workmem CreateOAEPEncrypt needs.
func OAEPEncryptWorkmemSize(alg *hsm.HashAlgorithm, key *Key) int {
	return mgf1.WorkmemSize(alg) + key.Size()
}

// OAEPDecryptWorkmemSize returns the workmem CreateOAEPDecrypt needs.
func OAEPDecryptWorkmemSize(alg *hsm.HashAlgorithm, key *Key) int {
	return mgf1.WorkmemSize(alg) + key.Size() + alg.DigestSize
}

type oaep struct {
	alg   *hsm.HashAlgorithm
	key   *Key
	label []byte
	out   *Text
	in    []byte

	em, seed, db, lHash []byte
}

func newOAEP(t *task.Task, alg *hsm.HashAlgorithm, key *Key, label []byte, out *Text, decrypt bool) *oaep {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return nil
	}
	k, hLen := key.Size(), alg.DigestSize
	if k < 2*hLen+2 {
		t.MarkFinal(status.ErrInvalidArg)
		return nil
	}
	l := task.Layout{mgf1.WorkmemSize(alg), k}
	if decrypt {
		l = append(l, hLen)
	}
	mem, ok := t.Carve(l)
	if !ok {
		return nil
	}
	o := &oaep{alg: alg, key: key, label: label, out: out, em: mem[1]}
	o.seed = o.em[1 : 1+hLen]
	o.db = o.em[1+hLen:]
	if decrypt {
		o.lHash = mem[2]
	}
	return o
}

// CreateOAEPEncrypt configures t to encrypt the consumed message with
// RSAES-OAEP under the public key. label may be nil. Run writes key.Size()
// bytes to out.
func CreateOAEPEncrypt(t *task.Task, alg *hsm.HashAlgorithm, key *Key, label []byte, out *Text) {
	o := newOAEP(t, alg, key, label, out, false)
	if o == nil {
		return
	}
	if len(out.Buf) < len(o.em) {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return
	}
	t.Configure(task.Actions{
		Consume: func(t *task.Task, m []byte) { o.in = m },
		Run:     o.encrypt,
	})
}

// encrypt starts with lHash = Hash(L), written to the front of DB.
func (o *oaep) encrypt(t *task.Task) {
	if len(o.in) > len(o.em)-2*o.alg.DigestSize-2 {
		t.MarkFinal(status.ErrTooBig)
		return
	}
	digest.Create(t, o.alg)
	t.Consume(o.label)
	t.RunAfter(o.pad)
	t.Produce(o.db[:o.alg.DigestSize])
}

// pad completes DB = lHash | PS | 0x01 | M and draws the seed.
func (o *oaep) pad(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	hLen := o.alg.DigestSize
	sep := len(o.db) - len(o.in) - 1
	clear(o.db[hLen:sep])
	o.db[sep] = 0x01
	copy(o.db[sep+1:], o.in)
	o.em[0] = 0x00
	t.RunAfter(o.maskDB)
	t.AwaitRandom(o.seed)
	return t.Code()
}

func (o *oaep) maskDB(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return o.mask(t, o.seed, o.db, o.maskSeed)
}

func (o *oaep) maskSeed(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return o.mask(t, o.db, o.seed, o.exponentiate)
}

// mask XORs MGF1(seed) into inout, then continues with next.
func (o *oaep) mask(t *task.Task, seed, inout []byte, next task.Continuation) status.Code {
	mgf1.CreateXOR(t, o.alg)
	t.Consume(seed)
	t.RunAfter(next)
	t.Produce(inout)
	return t.Code()
}

func (o *oaep) exponentiate(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	k := len(o.em)
	modExp{key: o.key, invalid: status.ErrInvalidArg}.start(t, o.em, o.out.Buf[:k], func(t *task.Task) status.Code {
		o.out.Len = k
		return status.OK
	})
	return t.Code()
}

// CreateOAEPDecrypt configures t to decrypt the consumed ciphertext with
// RSAES-OAEP under the private key. label must match the one used to
// encrypt. Run copies the message to out.
func CreateOAEPDecrypt(t *task.Task, alg *hsm.HashAlgorithm, key *Key, label []byte, out *Text) {
	o := newOAEP(t, alg, key, label, out, true)
	if o == nil {
		return
	}
	t.Configure(task.Actions{
		Consume: func(t *task.Task, c []byte) { o.in = c },
		Run:     o.decrypt,
	})
}

func (o *oaep) decrypt(t *task.Task) {
	if len(o.in) != len(o.em) {
		t.MarkFinal(status.ErrInvalidCiphertext)
		return
	}
	exp := modExp{key: o.key, private: true, invalid: status.ErrInvalidCiphertext}
	exp.start(t, o.in, o.em, func(t *task.Task) status.Code {
		return o.mask(t, o.db, o.seed, o.unmaskDB)
	})
}

func (o *oaep) unmaskDB(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return o.mask(t, o.seed, o.db, o.hashLabel)
}

func (o *oaep) hashLabel(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	digest.Create(t, o.alg)
	t.Consume(o.label)
	t.RunAfter(o.unpad)
	t.Produce(o.lHash)
	return t.Code()
}

// unpad checks Y = 0, lHash' = lHash and the 0x01 separator after the zero
// padding. All failures report the same status.
func (o *oaep) unpad(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	hLen := o.alg.DigestSize
	good := subtle.ConstantTimeByteEq(o.em[0], 0)
	good &= subtle.ConstantTimeCompare(o.lHash, o.db[:hLen])

	rest := o.db[hLen:]
	lookingForIndex, index := 1, 0
	invalid := 0
	for i, b := range rest {
		isZero := subtle.ConstantTimeByteEq(b, 0)
		isOne := subtle.ConstantTimeByteEq(b, 1)
		index = subtle.ConstantTimeSelect(lookingForIndex&isOne, i, index)
		lookingForIndex = subtle.ConstantTimeSelect(isOne, 0, lookingForIndex)
		invalid = subtle.ConstantTimeSelect(lookingForIndex&^isZero, 1, invalid)
	}
	if good&^invalid&^lookingForIndex != 1 {
		return t.MarkFinal(status.ErrInvalidCiphertext)
	}
	msg := rest[index+1:]
	if len(o.out.Buf) < len(msg) {
		return t.MarkFinal(status.ErrOutputBufferTooSmall)
	}
	o.out.Len = copy(o.out.Buf, msg)
	return status.OK
}
