package hsm

import (
	"fmt"

	"github.com/glinharesb/sicrypto/internal/status"
)

// Command selects the operation a Request performs on the engine.
type Command int

const (
	CmdModExp Command = iota + 1
	CmdModExpCRT
	CmdModReduce
	CmdModInverse
	CmdMillerRabin
	CmdRSAKeygen
	CmdRSACRTParams
	CmdECPointMult
	CmdECDSAGenerate
	CmdECDSAVerify
	CmdEd25519PointMult
	CmdEd25519Verify
	CmdEd448PointMult
	CmdEd448Verify
	CmdX25519PointMult
	CmdX448PointMult
	CmdIsolatedECDSASign
	CmdIsolatedPublicKey
)

var commandNames = map[Command]string{
	CmdModExp:            "modexp",
	CmdModExpCRT:         "modexp-crt",
	CmdModReduce:         "mod-reduce",
	CmdModInverse:        "mod-inverse",
	CmdMillerRabin:       "miller-rabin",
	CmdRSAKeygen:         "rsa-keygen",
	CmdRSACRTParams:      "rsa-crt-params",
	CmdECPointMult:       "ec-point-mult",
	CmdECDSAGenerate:     "ecdsa-generate",
	CmdECDSAVerify:       "ecdsa-verify",
	CmdEd25519PointMult:  "ed25519-point-mult",
	CmdEd25519Verify:     "ed25519-verify",
	CmdEd448PointMult:    "ed448-point-mult",
	CmdEd448Verify:       "ed448-verify",
	CmdX25519PointMult:   "x25519-point-mult",
	CmdX448PointMult:     "x448-point-mult",
	CmdIsolatedECDSASign: "isolated-ecdsa-sign",
	CmdIsolatedPublicKey: "isolated-public-key",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Engine abstracts the public-key accelerator.
// Real implementations would drive a memory-mapped coprocessor.
type Engine interface {
	// Acquire reserves the engine for one command. It blocks until a
	// request slot is free.
	Acquire(cmd Command) (Request, status.Code)
	// EnterIsolated opens a session with the isolated key store. Only one
	// session may be open at a time; the caller must call Exit.
	EnterIsolated() (IsolatedSession, status.Code)
}

// Request is one acquired engine command.
type Request interface {
	Command() Command
	// ListInputs reserves one big-endian operand slot per size.
	ListInputs(sizes ...int) ([]Slot, status.Code)
	// ListCurveInputs reserves the operand slots of an elliptic curve
	// command, each curve.OpSize bytes wide.
	ListCurveInputs(curve *Curve) ([]Slot, status.Code)
	Run()
	// Status returns HardwareProcessing until the command finished.
	Status() status.Code
	Wait() status.Code
	Output(i int) []byte
	Release()
}

// IsolatedSession gives access to keys that never leave the engine.
type IsolatedSession interface {
	// Acquire starts a command that uses isolated key slot index.
	Acquire(cmd Command, index int) (Request, status.Code)
	Exit()
}

// Slot is an operand register of a Request.
type Slot []byte

// Write stores p right-aligned in the slot, zero filling the leading bytes.
func (s Slot) Write(p []byte) {
	if len(p) > len(s) {
		panic(fmt.Sprintf("hsm: operand of %d bytes written to %d byte slot", len(p), len(s)))
	}
	pad := len(s) - len(p)
	clear(s[:pad])
	copy(s[pad:], p)
}
