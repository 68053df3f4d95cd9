// Package drbg implements the Hash_DRBG and CTR_DRBG deterministic random
// bit generators of NIST SP 800-90A.
//
// A DRBG task is configured once with a create function and then goes
// through instantiate (consume entropy, Run), any number of generate calls
// (Produce) and reseeds (consume entropy, Run). When an operation finishes
// successfully the task is re-armed and reports Ready. After a terminal
// error, Rearm brings the task back without losing the working state.
package drbg

import (
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// State is the instantiation state of a DRBG.
type State int

const (
	NotInstantiated State = iota
	Instantiating
	Instantiated
)

func (s State) String() string {
	switch s {
	case NotInstantiated:
		return "not instantiated"
	case Instantiating:
		return "instantiating"
	case Instantiated:
		return "instantiated"
	}
	return "unknown"
}

const (
	// MaxRequestSize is the largest generate request, 2^19 bits.
	MaxRequestSize = 1 << 16
	// ReseedInterval is the number of generate calls allowed between reseeds.
	ReseedInterval = uint64(1) << 48
	maxInputSize   = 1 << 16
)

type generator interface {
	state() State
	reseedCounter() uint64
	actions() task.Actions
}

// base carries the bookkeeping common to both DRBGs.
type base struct {
	st      State
	counter uint64
	input   [][]byte
	inputSz int
}

func (b *base) state() State          { return b.st }
func (b *base) reseedCounter() uint64 { return b.counter }

func (b *base) consume(t *task.Task, data []byte) {
	b.input = append(b.input, data)
	b.inputSz += len(data)
}

func (b *base) takeInput() ([][]byte, int) {
	in, sz := b.input, b.inputSz
	b.input, b.inputSz = nil, 0
	return in, sz
}

// checkGenerate validates a generate request. It returns false after marking
// the task final.
func (b *base) checkGenerate(t *task.Task, out []byte) bool {
	if b.counter > ReseedInterval {
		t.MarkFinal(status.ErrReseedNeeded)
		return false
	}
	if len(out) > MaxRequestSize {
		t.MarkFinal(status.ErrInvalidRequestSize)
		return false
	}
	return true
}

// rearm makes the task Ready for the next operation on g.
func rearm(t *task.Task, g generator) status.Code {
	t.Configure(g.actions())
	return t.Code()
}

// Rearm re-arms a DRBG task after a terminal result, keeping the working
// state. Generate keeps failing with ErrReseedNeeded until the task is
// reseeded.
func Rearm(t *task.Task) status.Code {
	g, ok := t.Params().(generator)
	if !ok {
		return t.MarkFinal(status.ErrInvalidArg)
	}
	return rearm(t, g)
}

// StateOf reports the instantiation state and reseed counter of the DRBG
// configured on t.
func StateOf(t *task.Task) (State, uint64) {
	g, ok := t.Params().(generator)
	if !ok {
		return NotInstantiated, 0
	}
	return g.state(), g.reseedCounter()
}
