package hsm

import (
	"crypto/rand"
	"io"
	"runtime"
	"sync"

	"github.com/glinharesb/sicrypto/internal/status"
)

// SoftwareHSM is a software-only engine for development and testing.
// In production, this would be replaced by the hardware accelerator driver.
// Every request runs on its own goroutine so callers observe the same
// asynchronous completion they would get from hardware.
type SoftwareHSM struct {
	slots   chan struct{}
	session chan struct{}
	seed    []byte
	rand    io.Reader
}

// Option configures a SoftwareHSM.
type Option func(*SoftwareHSM)

// WithSlots sets how many requests may be outstanding at once.
func WithSlots(n int) Option {
	return func(s *SoftwareHSM) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// WithIsolatedSeed sets the device secret isolated keys are derived from.
func WithIsolatedSeed(seed []byte) Option {
	return func(s *SoftwareHSM) {
		s.seed = append([]byte(nil), seed...)
	}
}

// WithRandom sets the randomness the engine uses internally for isolated
// key signatures.
func WithRandom(r io.Reader) Option {
	return func(s *SoftwareHSM) {
		s.rand = r
	}
}

func NewSoftwareHSM(opts ...Option) *SoftwareHSM {
	s := &SoftwareHSM{
		slots:   make(chan struct{}, runtime.NumCPU()),
		session: make(chan struct{}, 1),
		rand:    rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seed == nil {
		s.seed = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, s.seed); err != nil {
			panic("hsm: cannot seed isolated key store: " + err.Error())
		}
	}
	return s
}

var (
	defaultOnce sync.Once
	defaultHSM  *SoftwareHSM
)

// Default returns a process-wide software engine.
func Default() *SoftwareHSM {
	defaultOnce.Do(func() {
		defaultHSM = NewSoftwareHSM()
	})
	return defaultHSM
}

func (s *SoftwareHSM) Acquire(cmd Command) (Request, status.Code) {
	if _, ok := commandNames[cmd]; !ok || cmd == CmdIsolatedECDSASign || cmd == CmdIsolatedPublicKey {
		return nil, status.ErrNotSupported
	}
	s.slots <- struct{}{}
	return &request{eng: s, cmd: cmd, code: status.Ready}, status.OK
}

func (s *SoftwareHSM) EnterIsolated() (IsolatedSession, status.Code) {
	s.session <- struct{}{}
	return &session{eng: s}, status.OK
}

type session struct {
	eng  *SoftwareHSM
	once sync.Once
	done bool
}

func (ss *session) Acquire(cmd Command, index int) (Request, status.Code) {
	if ss.done {
		return nil, status.ErrInvalidArg
	}
	if cmd != CmdIsolatedECDSASign && cmd != CmdIsolatedPublicKey {
		return nil, status.ErrNotSupported
	}
	d, code := ss.eng.isolatedKey(index)
	if code != status.OK {
		return nil, code
	}
	ss.eng.slots <- struct{}{}
	return &request{eng: ss.eng, cmd: cmd, code: status.Ready, isolated: d}, status.OK
}

func (ss *session) Exit() {
	ss.once.Do(func() {
		ss.done = true
		<-ss.eng.session
	})
}

type request struct {
	eng      *SoftwareHSM
	cmd      Command
	curve    *Curve
	isolated []byte

	inputs  []Slot
	outputs [][]byte
	code    status.Code
	done    chan struct{}
	once    sync.Once
}

func (r *request) Command() Command { return r.cmd }

func (r *request) ListInputs(sizes ...int) ([]Slot, status.Code) {
	if len(sizes) != inputCount(r.cmd) {
		return nil, status.ErrInvalidArg
	}
	r.inputs = make([]Slot, len(sizes))
	for i, sz := range sizes {
		if sz <= 0 {
			return nil, status.ErrInvalidArg
		}
		r.inputs[i] = make(Slot, sz)
	}
	return r.inputs, status.OK
}

func (r *request) ListCurveInputs(curve *Curve) ([]Slot, status.Code) {
	if curve == nil || !curveFits(r.cmd, curve) {
		return nil, status.ErrInvalidArg
	}
	r.curve = curve
	r.inputs = make([]Slot, inputCount(r.cmd))
	for i := range r.inputs {
		r.inputs[i] = make(Slot, curve.OpSize)
	}
	return r.inputs, status.OK
}

func (r *request) Run() {
	r.done = make(chan struct{})
	if r.inputs == nil && inputCount(r.cmd) > 0 {
		r.code = status.ErrInvalidArg
		close(r.done)
		return
	}
	r.code = status.HardwareProcessing
	go func() {
		defer close(r.done)
		r.outputs, r.code = r.execute()
	}()
}

func (r *request) Status() status.Code {
	if r.done == nil {
		return r.code
	}
	select {
	case <-r.done:
		return r.code
	default:
		return status.HardwareProcessing
	}
}

func (r *request) Wait() status.Code {
	if r.done == nil {
		return r.code
	}
	<-r.done
	return r.code
}

func (r *request) Output(i int) []byte {
	if i < 0 || i >= len(r.outputs) {
		return nil
	}
	return r.outputs[i]
}

func (r *request) Release() {
	r.once.Do(func() {
		if r.done != nil {
			<-r.done
		}
		<-r.eng.slots
	})
}

func inputCount(cmd Command) int {
	switch cmd {
	case CmdModExp, CmdRSAKeygen, CmdRSACRTParams, CmdECPointMult, CmdECDSAGenerate:
		return 3
	case CmdModExpCRT:
		return 6
	case CmdModReduce, CmdModInverse, CmdMillerRabin:
		return 2
	case CmdECDSAVerify:
		return 5
	case CmdEd25519Verify, CmdEd448Verify:
		return 4
	case CmdEd25519PointMult, CmdEd448PointMult, CmdX25519PointMult, CmdX448PointMult,
		CmdIsolatedECDSASign:
		return 1
	}
	return 0
}

func curveFits(cmd Command, c *Curve) bool {
	switch cmd {
	case CmdECPointMult, CmdECDSAGenerate, CmdECDSAVerify:
		return c.Kind == Weierstrass
	case CmdIsolatedECDSASign, CmdIsolatedPublicKey:
		return c == P256
	case CmdEd25519PointMult, CmdEd25519Verify:
		return c == Ed25519
	case CmdEd448PointMult, CmdEd448Verify:
		return c == Ed448
	case CmdX25519PointMult:
		return c == X25519
	case CmdX448PointMult:
		return c == X448
	}
	return false
}
