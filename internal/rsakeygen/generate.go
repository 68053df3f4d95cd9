package rsakeygen

import (
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// MinKeySize is the smallest modulus, in bytes, CreateGeneratePrivateKey
// accepts.
const MinKeySize = 256

// GeneratePQWorkmemSize returns the workmem CreateGeneratePQ needs for a
// modulus of keySize bytes.
func GeneratePQWorkmemSize(keySize int) int {
	return CheckPQWorkmemSize(keySize / 2)
}

type generatePQ struct {
	e     []byte
	p, q  []byte
	qPtr  []byte
	out   []byte
	size  int
	limit int

	// attempts counts rejections for compositeness or a common factor
	// with e. FIPS 186-4 B.3.3 does not charge magnitude rejections to
	// attempts, so they are counted in rangeRejects under the same bound.
	attempts     int
	rangeRejects int
}

// CreateGeneratePQ configures t to generate the prime factors of a keySize
// byte modulus into p and q, each keySize/2 bytes. keySize must be even.
func CreateGeneratePQ(t *task.Task, e []byte, keySize int, p, q []byte) {
	if len(e) == 0 || keySize == 0 {
		t.MarkFinal(status.ErrInputBufferTooSmall)
		return
	}
	if e[len(e)-1]&1 == 0 || len(e) > keySize || e[0] == 0 || keySize&1 != 0 {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	size := keySize / 2
	if len(p) != size || len(q) != size {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return
	}
	if !t.RequireWorkmem(GeneratePQWorkmemSize(keySize)) {
		return
	}
	g := &generatePQ{e: e, p: p, q: q, out: p, size: size, limit: 5 * 8 * size}
	t.Configure(task.Actions{Run: g.draw})
}

// draw fills the current candidate with random bytes.
func (g *generatePQ) draw(t *task.Task) {
	t.RunAfter(g.check)
	t.AwaitRandom(g.out)
}

// check forces the candidate odd and full length, then tests it.
func (g *generatePQ) check(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	g.out[g.size-1] |= 1
	g.out[0] |= 0x80
	t.RunAfter(g.next)
	CreateCheckPQ(t, g.e, g.p, g.qPtr)
	t.Run()
	return t.Code()
}

func (g *generatePQ) next(t *task.Task) status.Code {
	switch code := t.Code(); code {
	case status.OK:
		if g.qPtr != nil {
			return status.OK
		}
		t.Logger().Debug("rsa prime p accepted", "attempts", g.attempts, "range_rejects", g.rangeRejects)
		g.qPtr = g.q
		g.out = g.q
		g.attempts, g.rangeRejects = 0, 0
	case status.ErrCompositeValue, status.ErrNotInvertible, status.ErrRSAPQRangeCheckFail:
		if g.reject(code) {
			return t.MarkFinal(status.ErrTooManyAttempts)
		}
	default:
		return code
	}
	g.draw(t)
	return t.Code()
}

// reject charges a rejected candidate to its counter and reports whether
// the attempt bound is reached.
func (g *generatePQ) reject(code status.Code) bool {
	if code == status.ErrRSAPQRangeCheckFail {
		g.rangeRejects++
		return g.rangeRejects >= g.limit
	}
	g.attempts++
	return g.attempts >= g.limit
}

// GeneratePrivateKeyWorkmemSize returns the workmem
// CreateGeneratePrivateKey needs for a modulus of keySize bytes.
func GeneratePrivateKeyWorkmemSize(keySize int) int {
	return 2 * keySize
}

type genPrivKey struct {
	e       []byte
	keySize int
	crt     bool
	key     *rsa.Key

	d, p, q []byte
}

// CreateGeneratePrivateKey configures t to generate an RSA private key with
// a keySize byte modulus and public exponent e into key. With crt set the
// key gets P, Q, DP, DQ and QInv, otherwise D; N and E are always set.
//
// e must be odd and lie strictly between 2^16 and 2^256. keySize must be
// even and at least MinKeySize.
func CreateGeneratePrivateKey(t *task.Task, e []byte, keySize int, crt bool, key *rsa.Key) {
	mem, ok := t.Carve(task.Layout{keySize, keySize / 2, keySize / 2})
	if !ok {
		return
	}
	if keySize < MinKeySize {
		t.MarkFinal(status.ErrIncompatibleHW)
		return
	}
	if len(e) > 32 {
		t.MarkFinal(status.ErrTooBig)
		return
	}
	if len(e) <= 2 || (len(e) == 3 && e[0] == 1 && e[1] == 0 && e[2] == 0) {
		t.MarkFinal(status.ErrInputBufferTooSmall)
		return
	}
	if e[len(e)-1]&1 == 0 || e[0] == 0 || keySize&1 != 0 {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	g := &genPrivKey{e: e, keySize: keySize, crt: crt, key: key, d: mem[0], p: mem[1], q: mem[2]}
	t.RunAfter(g.generateND)
	CreateGeneratePQ(t, e, keySize, g.p, g.q)
}

// generateND derives n, lambda(n) and d from the accepted primes.
func (g *genPrivKey) generateND(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	req, ok := t.Acquire(hsm.CmdRSAKeygen)
	if !ok {
		return t.Code()
	}
	in, ok := t.Inputs(req, len(g.p), len(g.q), len(g.e))
	if !ok {
		return t.Code()
	}
	in[0].Write(g.p)
	in[1].Write(g.q)
	in[2].Write(g.e)
	t.RunAfter(g.storeND)
	t.Submit(req)
	return t.Code()
}

func (g *genPrivKey) storeND(t *task.Task) status.Code {
	if t.Code() != status.OK {
		t.ReleaseRequest()
		return t.Code()
	}
	req := t.Request()
	g.key.N = clone(req.Output(0))
	g.key.E = clone(g.e)
	if !g.crt {
		g.key.D = clone(req.Output(2))
		t.ReleaseRequest()
		return status.OK
	}
	copy(g.d, req.Output(2))
	t.ReleaseRequest()

	req, ok := t.Acquire(hsm.CmdRSACRTParams)
	if !ok {
		return t.Code()
	}
	in, ok := t.Inputs(req, len(g.p), len(g.q), len(g.d))
	if !ok {
		return t.Code()
	}
	in[0].Write(g.p)
	in[1].Write(g.q)
	in[2].Write(g.d)
	t.RunAfter(g.storeCRT)
	t.Submit(req)
	return t.Code()
}

func (g *genPrivKey) storeCRT(t *task.Task) status.Code {
	defer t.ReleaseRequest()
	if t.Code() != status.OK {
		return t.Code()
	}
	req := t.Request()
	g.key.P = clone(g.p)
	g.key.Q = clone(g.q)
	g.key.DP = clone(req.Output(0))
	g.key.DQ = clone(req.Output(1))
	g.key.QInv = clone(req.Output(2))
	clear(g.d)
	return status.OK
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
