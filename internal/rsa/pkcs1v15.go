package rsa

import (
	"bytes"

	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// PKCS1v15WorkmemSize returns the workmem PKCS#1 v1.5 encryption and
// decryption need for key.
func PKCS1v15WorkmemSize(key *Key) int {
	return key.Size()
}

type pkcs1v15Enc struct {
	key      *Key
	out      *Text
	msg      []byte
	em       []byte
	ps       []byte
	attempts int
}

// CreatePKCS1v15Encrypt configures t to encrypt the consumed message with
// the public key (RSAES-PKCS1-v1_5). Run writes key.Size() bytes to out.
func CreatePKCS1v15Encrypt(t *task.Task, key *Key, out *Text) {
	k := key.Size()
	mem, ok := t.Carve(task.Layout{k})
	if !ok {
		return
	}
	if len(out.Buf) < k {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return
	}
	e := &pkcs1v15Enc{key: key, out: out, em: mem[0]}
	t.Configure(task.Actions{
		Consume: func(t *task.Task, m []byte) { e.msg = m },
		Run:     e.run,
	})
}

// run lays out EM = 0x00 | 0x02 | PS | 0x00 | M and fills PS with non-zero
// random bytes.
func (e *pkcs1v15Enc) run(t *task.Task) {
	k := len(e.em)
	if len(e.msg) > k-11 {
		t.MarkFinal(status.ErrTooBig)
		return
	}
	e.em[0] = 0x00
	e.em[1] = 0x02
	e.ps = e.em[2 : k-len(e.msg)-1]
	e.em[k-len(e.msg)-1] = 0x00
	copy(e.em[k-len(e.msg):], e.msg)
	e.attempts = 0
	t.RunAfter(e.fillPadding)
	t.AwaitRandom(e.ps)
}

// fillPadding redraws padding bytes from the first zero byte on.
func (e *pkcs1v15Enc) fillPadding(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	i := bytes.IndexByte(e.ps, 0)
	if i < 0 {
		modExp{key: e.key, invalid: status.ErrInvalidArg}.start(t, e.em, e.out.Buf[:len(e.em)], func(t *task.Task) status.Code {
			e.out.Len = len(e.em)
			return status.OK
		})
		return t.Code()
	}
	e.attempts++
	if e.attempts > 100*len(e.ps) {
		return t.MarkFinal(status.ErrTooManyAttempts)
	}
	t.RunAfter(e.fillPadding)
	t.AwaitRandom(e.ps[i:])
	return t.Code()
}

type pkcs1v15Dec struct {
	key *Key
	out *Text
	ct  []byte
	em  []byte
}

// CreatePKCS1v15Decrypt configures t to decrypt the consumed ciphertext with
// the private key. Run copies the message to out.
func CreatePKCS1v15Decrypt(t *task.Task, key *Key, out *Text) {
	mem, ok := t.Carve(task.Layout{key.Size()})
	if !ok {
		return
	}
	d := &pkcs1v15Dec{key: key, out: out, em: mem[0]}
	t.Configure(task.Actions{
		Consume: func(t *task.Task, c []byte) { d.ct = c },
		Run:     d.run,
	})
}

func (d *pkcs1v15Dec) run(t *task.Task) {
	if len(d.ct) != len(d.em) {
		t.MarkFinal(status.ErrInvalidCiphertext)
		return
	}
	modExp{key: d.key, private: true, invalid: status.ErrInvalidCiphertext}.start(t, d.ct, d.em, d.unpad)
}

func (d *pkcs1v15Dec) unpad(t *task.Task) status.Code {
	em := d.em
	if em[0] != 0x00 || em[1] != 0x02 {
		return t.MarkFinal(status.ErrInvalidCiphertext)
	}
	sep := bytes.IndexByte(em[2:], 0)
	if sep < 8 {
		return t.MarkFinal(status.ErrInvalidCiphertext)
	}
	msg := em[2+sep+1:]
	if len(d.out.Buf) < len(msg) {
		return t.MarkFinal(status.ErrOutputBufferTooSmall)
	}
	d.out.Len = copy(d.out.Buf, msg)
	return status.OK
}
