package hsm

import (
	"bytes"
	"crypto/sha256"
	"io"
	"math/big"

	"filippo.io/edwards25519"
	"github.com/cloudflare/circl/dh/x448"
	"github.com/cloudflare/circl/ecc/goldilocks"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/glinharesb/sicrypto/internal/status"
)

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

func (r *request) execute() ([][]byte, status.Code) {
	in := make([]*big.Int, len(r.inputs))
	for i, s := range r.inputs {
		in[i] = new(big.Int).SetBytes(s)
	}
	switch r.cmd {
	case CmdModExp:
		return modExp(in[0], in[1], in[2], len(r.inputs[0]))
	case CmdModExpCRT:
		return modExpCRT(in, len(r.inputs[0])+len(r.inputs[1]))
	case CmdModReduce:
		return modReduce(in[0], in[1], len(r.inputs[0]))
	case CmdModInverse:
		return modInverse(in[0], in[1], len(r.inputs[0]))
	case CmdMillerRabin:
		return nil, millerRabin(in[0], in[1])
	case CmdRSAKeygen:
		return rsaKeygen(in[0], in[1], in[2], len(r.inputs[0])+len(r.inputs[1]))
	case CmdRSACRTParams:
		return rsaCRTParams(in[0], in[1], in[2], len(r.inputs[0]), len(r.inputs[1]))
	case CmdECPointMult:
		return ecPointMult(r.curve, in[0], in[1], in[2])
	case CmdECDSAGenerate:
		return ecdsaGenerate(r.curve, in[0], in[1], in[2])
	case CmdECDSAVerify:
		return nil, ecdsaVerify(r.curve, in[0], in[1], in[2], in[3], in[4])
	case CmdEd25519PointMult:
		return ed25519PointMult(r.inputs[0])
	case CmdEd25519Verify:
		return nil, ed25519Verify(r.inputs[0], r.inputs[1], r.inputs[2], r.inputs[3])
	case CmdEd448PointMult:
		return ed448PointMult(r.inputs[0])
	case CmdEd448Verify:
		return nil, ed448Verify(r.inputs[0], r.inputs[1], r.inputs[2], r.inputs[3])
	case CmdX25519PointMult:
		return x25519PointMult(r.inputs[0])
	case CmdX448PointMult:
		return x448PointMult(r.inputs[0])
	case CmdIsolatedECDSASign:
		return r.isolatedSign(in[0])
	case CmdIsolatedPublicKey:
		return ecPointMult(P256, new(big.Int).SetBytes(r.isolated), nil, nil)
	}
	return nil, status.ErrNotSupported
}

func pad(v *big.Int, size int) []byte {
	return v.FillBytes(make([]byte, size))
}

func modExp(n, e, base *big.Int, size int) ([][]byte, status.Code) {
	if n.Sign() == 0 || n.Bit(0) == 0 {
		return nil, status.ErrInvalidArg
	}
	if base.Cmp(n) >= 0 {
		return nil, status.ErrOutOfRange
	}
	return [][]byte{pad(new(big.Int).Exp(base, e, n), size)}, status.OK
}

// modExpCRT computes base^d mod pq from the CRT key elements
// p, q, dp, dq, qinv.
func modExpCRT(in []*big.Int, size int) ([][]byte, status.Code) {
	p, q, dp, dq, qinv, base := in[0], in[1], in[2], in[3], in[4], in[5]
	if p.Sign() == 0 || q.Sign() == 0 {
		return nil, status.ErrInvalidArg
	}
	n := new(big.Int).Mul(p, q)
	if base.Cmp(n) >= 0 {
		return nil, status.ErrOutOfRange
	}
	m1 := new(big.Int).Exp(base, dp, p)
	m2 := new(big.Int).Exp(base, dq, q)
	h := new(big.Int).Sub(m1, m2)
	h.Mul(h, qinv)
	h.Mod(h, p)
	h.Mul(h, q)
	h.Add(h, m2)
	return [][]byte{pad(h, size)}, status.OK
}

func modReduce(n, a *big.Int, size int) ([][]byte, status.Code) {
	if n.Sign() == 0 {
		return nil, status.ErrInvalidArg
	}
	return [][]byte{pad(new(big.Int).Mod(a, n), size)}, status.OK
}

func modInverse(n, a *big.Int, size int) ([][]byte, status.Code) {
	if n.Sign() == 0 {
		return nil, status.ErrInvalidArg
	}
	x := new(big.Int).Mod(a, n)
	if x.Sign() == 0 {
		return nil, status.ErrNotInvertible
	}
	inv := new(big.Int).ModInverse(x, n)
	if inv == nil {
		return nil, status.ErrNotInvertible
	}
	return [][]byte{pad(inv, size)}, status.OK
}

// millerRabin runs one round of the Miller-Rabin test of w with base b.
func millerRabin(w, b *big.Int) status.Code {
	if w.Bit(0) == 0 || w.Cmp(big.NewInt(3)) <= 0 {
		return status.ErrInvalidArg
	}
	wm1 := new(big.Int).Sub(w, one)
	if b.Cmp(two) < 0 || b.Cmp(new(big.Int).Sub(w, one)) >= 0 {
		return status.ErrOutOfRange
	}
	a := 0
	for wm1.Bit(a) == 0 {
		a++
	}
	m := new(big.Int).Rsh(wm1, uint(a))
	z := new(big.Int).Exp(b, m, w)
	if z.Cmp(one) == 0 || z.Cmp(wm1) == 0 {
		return status.OK
	}
	for j := 1; j < a; j++ {
		z.Mul(z, z).Mod(z, w)
		if z.Cmp(wm1) == 0 {
			return status.OK
		}
		if z.Cmp(one) == 0 {
			break
		}
	}
	return status.ErrCompositeValue
}

// rsaKeygen outputs n, lambda(n) and d = e^-1 mod lambda(n).
func rsaKeygen(p, q, e *big.Int, size int) ([][]byte, status.Code) {
	if p.Sign() == 0 || q.Sign() == 0 || e.Sign() == 0 {
		return nil, status.ErrInvalidArg
	}
	n := new(big.Int).Mul(p, q)
	pm1 := new(big.Int).Sub(p, one)
	qm1 := new(big.Int).Sub(q, one)
	g := new(big.Int).GCD(nil, nil, pm1, qm1)
	lambda := new(big.Int).Mul(pm1, qm1)
	lambda.Div(lambda, g)
	d := new(big.Int).ModInverse(e, lambda)
	if d == nil {
		return nil, status.ErrNotInvertible
	}
	return [][]byte{pad(n, size), pad(lambda, size), pad(d, size)}, status.OK
}

func rsaCRTParams(p, q, d *big.Int, psize, qsize int) ([][]byte, status.Code) {
	if p.Cmp(one) <= 0 || q.Cmp(one) <= 0 {
		return nil, status.ErrInvalidArg
	}
	dp := new(big.Int).Mod(d, new(big.Int).Sub(p, one))
	dq := new(big.Int).Mod(d, new(big.Int).Sub(q, one))
	qinv := new(big.Int).ModInverse(q, p)
	if qinv == nil {
		return nil, status.ErrNotInvertible
	}
	return [][]byte{pad(dp, psize), pad(dq, qsize), pad(qinv, psize)}, status.OK
}

// ecPointMult computes k*P, or k*G when px is nil.
func ecPointMult(c *Curve, k, px, py *big.Int) ([][]byte, status.Code) {
	if c == nil || c.ec == nil {
		return nil, status.ErrInvalidArg
	}
	n := c.ec.Params().N
	if k.Sign() == 0 || k.Cmp(n) >= 0 {
		return nil, status.ErrOutOfRange
	}
	var x, y *big.Int
	if px == nil || (px.Cmp(c.ec.Params().Gx) == 0 && py.Cmp(c.ec.Params().Gy) == 0) {
		x, y = c.ec.ScalarBaseMult(k.Bytes())
	} else {
		if !c.ec.IsOnCurve(px, py) {
			return nil, status.ErrPointNotOnCurve
		}
		x, y = c.ec.ScalarMult(px, py, k.Bytes())
	}
	return [][]byte{pad(x, c.OpSize), pad(y, c.OpSize)}, status.OK
}

func ecdsaGenerate(c *Curve, d, k, h *big.Int) ([][]byte, status.Code) {
	n := c.ec.Params().N
	if d.Sign() == 0 || d.Cmp(n) >= 0 {
		return nil, status.ErrInvalidArg
	}
	if k.Cmp(n) >= 0 {
		return nil, status.ErrOutOfRange
	}
	kinv := new(big.Int).ModInverse(k, n)
	if k.Sign() == 0 || kinv == nil {
		return nil, status.ErrNotInvertible
	}
	x, _ := c.ec.ScalarBaseMult(k.Bytes())
	rr := new(big.Int).Mod(x, n)
	if rr.Sign() == 0 {
		return nil, status.ErrInvalidSignature
	}
	s := new(big.Int).Mul(rr, d)
	s.Add(s, h)
	s.Mul(s, kinv)
	s.Mod(s, n)
	if s.Sign() == 0 {
		return nil, status.ErrInvalidSignature
	}
	return [][]byte{pad(rr, c.OpSize), pad(s, c.OpSize)}, status.OK
}

func ecdsaVerify(c *Curve, qx, qy, rr, s, h *big.Int) status.Code {
	params := c.ec.Params()
	n := params.N
	if rr.Sign() == 0 || rr.Cmp(n) >= 0 || s.Sign() == 0 || s.Cmp(n) >= 0 {
		return status.ErrInvalidSignature
	}
	if !c.ec.IsOnCurve(qx, qy) {
		return status.ErrPointNotOnCurve
	}
	w := new(big.Int).ModInverse(s, n)
	u1 := new(big.Int).Mul(h, w)
	u1.Mod(u1, n)
	u2 := new(big.Int).Mul(rr, w)
	u2.Mod(u2, n)

	x1, y1 := c.ec.ScalarBaseMult(u1.Bytes())
	x2, y2 := c.ec.ScalarMult(qx, qy, u2.Bytes())
	var x, y *big.Int
	switch {
	case u1.Sign() == 0:
		x, y = x2, y2
	case x1.Cmp(x2) == 0 && y1.Cmp(y2) == 0:
		x, y = c.ec.Double(x1, y1)
	default:
		x, y = c.ec.Add(x1, y1, x2, y2)
	}
	if x.Sign() == 0 && y.Sign() == 0 {
		return status.ErrInvalidSignature
	}
	if x.Mod(x, n).Cmp(rr) != 0 {
		return status.ErrInvalidSignature
	}
	return status.OK
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// ed25519Scalar reduces a little-endian 32 byte value modulo the group order.
func ed25519Scalar(le []byte) *edwards25519.Scalar {
	var wide [64]byte
	copy(wide[:], le)
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic("hsm: " + err.Error())
	}
	return s
}

func ed25519PointMult(scalar []byte) ([][]byte, status.Code) {
	p := new(edwards25519.Point).ScalarBaseMult(ed25519Scalar(scalar))
	return [][]byte{p.Bytes()}, status.OK
}

// ed25519Verify checks [S]B == R + [k]A.
func ed25519Verify(k, a, rEnc, s []byte) status.Code {
	A, err := new(edwards25519.Point).SetBytes(a)
	if err != nil {
		return status.ErrInvalidSignature
	}
	S, err := edwards25519.NewScalar().SetCanonicalBytes(s)
	if err != nil {
		return status.ErrInvalidSignature
	}
	K, err := edwards25519.NewScalar().SetCanonicalBytes(k)
	if err != nil {
		return status.ErrInvalidArg
	}
	minusA := new(edwards25519.Point).Negate(A)
	R := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(K, minusA, S)
	if !bytes.Equal(R.Bytes(), rEnc) {
		return status.ErrInvalidSignature
	}
	return status.OK
}

var curve448 goldilocks.Curve

func ed448PointMult(scalar []byte) ([][]byte, status.Code) {
	k := &goldilocks.Scalar{}
	k.FromBytes(scalar)
	p := curve448.ScalarBaseMult(k)
	out := make([]byte, Ed448.OpSize)
	if err := p.ToBytes(out); err != nil {
		return nil, status.ErrHardware
	}
	return [][]byte{out}, status.OK
}

func ed448Verify(k, a, rEnc, s []byte) status.Code {
	A, err := goldilocks.FromBytes(a)
	if err != nil {
		return status.ErrInvalidSignature
	}
	if new(big.Int).SetBytes(reverse(s)).Cmp(ed448Order) >= 0 {
		return status.ErrInvalidSignature
	}
	S := &goldilocks.Scalar{}
	S.FromBytes(s)
	K := &goldilocks.Scalar{}
	K.FromBytes(k)
	A.Neg()
	R := curve448.CombinedMult(S, K, A)
	enc := make([]byte, Ed448.OpSize)
	if err := R.ToBytes(enc); err != nil {
		return status.ErrInvalidSignature
	}
	if !bytes.Equal(enc, rEnc) {
		return status.ErrInvalidSignature
	}
	return status.OK
}

func x25519PointMult(scalar []byte) ([][]byte, status.Code) {
	u, err := curve25519.X25519(scalar, curve25519.Basepoint)
	if err != nil {
		return nil, status.ErrInvalidArg
	}
	return [][]byte{u}, status.OK
}

func x448PointMult(scalar []byte) ([][]byte, status.Code) {
	var pub, sec x448.Key
	copy(sec[:], scalar)
	x448.KeyGen(&pub, &sec)
	return [][]byte{pub[:]}, status.OK
}

func (r *request) isolatedSign(h *big.Int) ([][]byte, status.Code) {
	d := new(big.Int).SetBytes(r.isolated)
	n := P256.ec.Params().N
	for range 255 {
		k, err := randScalar(r.eng.rand, n)
		if err != nil {
			return nil, status.ErrHardware
		}
		out, code := ecdsaGenerate(P256, d, k, h)
		if code == status.ErrInvalidSignature || code == status.ErrNotInvertible {
			continue
		}
		return out, code
	}
	return nil, status.ErrTooManyAttempts
}

func randScalar(rnd io.Reader, n *big.Int) (*big.Int, error) {
	buf := make([]byte, (n.BitLen()+7)/8+8)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return nil, err
	}
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, new(big.Int).Sub(n, one))
	return k.Add(k, one), nil
}

// isolatedKey derives the P-256 private scalar of an isolated key slot from
// the device seed.
func (s *SoftwareHSM) isolatedKey(index int) ([]byte, status.Code) {
	if index < 0 || index > 255 {
		return nil, status.ErrInvalidArg
	}
	info := []byte{'s', 'i', 'k', byte(index)}
	kdf := hkdf.New(sha256.New, s.seed, nil, info)
	d, err := randScalar(kdf, P256.ec.Params().N)
	if err != nil {
		return nil, status.ErrHardware
	}
	return pad(d, P256.OpSize), status.OK
}
