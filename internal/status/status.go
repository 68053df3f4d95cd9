// Package status defines the result codes shared by tasks, the hardware
// engine model and the algorithms built on top of them.
package status

import "fmt"

// Code is the status of a task or of a hardware request. Negative values are
// terminal errors; OK, Ready and HardwareProcessing are not errors.
type Code int

const (
	OK                 Code = 0
	Ready              Code = 1
	HardwareProcessing Code = 2

	ErrInvalidArg            Code = -1
	ErrWorkmemBufferTooSmall Code = -2
	ErrOutputBufferTooSmall  Code = -3
	ErrInputBufferTooSmall   Code = -4
	ErrTooBig                Code = -5
	ErrUnsupportedHashAlg    Code = -6
	ErrInvalidSignature      Code = -7
	ErrInvalidCiphertext     Code = -8
	ErrNotInvertible         Code = -9
	ErrCompositeValue        Code = -10
	ErrRSAPQRangeCheckFail   Code = -11
	ErrTooManyAttempts       Code = -12
	ErrReseedNeeded          Code = -13
	ErrInvalidRequestSize    Code = -14
	ErrOutOfRange            Code = -15
	ErrIncompatibleHW        Code = -16
	ErrPointNotOnCurve       Code = -17
	ErrNotSupported          Code = -18
	ErrHardware              Code = -19
	ErrUnknown               Code = -20
)

// Kind groups codes into the classes callers usually branch on.
type Kind int

const (
	KindNone Kind = iota
	KindSizing
	KindArgument
	KindValidity
	KindExhaustion
	KindHardware
)

var names = map[Code]string{
	OK:                       "ok",
	Ready:                    "ready",
	HardwareProcessing:       "hardware processing",
	ErrInvalidArg:            "invalid argument",
	ErrWorkmemBufferTooSmall: "workmem buffer too small",
	ErrOutputBufferTooSmall:  "output buffer too small",
	ErrInputBufferTooSmall:   "input buffer too small",
	ErrTooBig:                "input too big",
	ErrUnsupportedHashAlg:    "unsupported hash algorithm",
	ErrInvalidSignature:      "invalid signature",
	ErrInvalidCiphertext:     "invalid ciphertext",
	ErrNotInvertible:         "not invertible",
	ErrCompositeValue:        "composite value",
	ErrRSAPQRangeCheckFail:   "rsa p/q range check failed",
	ErrTooManyAttempts:       "too many attempts",
	ErrReseedNeeded:          "reseed needed",
	ErrInvalidRequestSize:    "invalid request size",
	ErrOutOfRange:            "operand out of range",
	ErrIncompatibleHW:        "incompatible hardware",
	ErrPointNotOnCurve:       "point not on curve",
	ErrNotSupported:          "operation not supported",
	ErrHardware:              "hardware failure",
	ErrUnknown:               "unknown error",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("status(%d)", int(c))
}

func (c Code) Error() string {
	return "sicrypto: " + c.String()
}

// Err returns nil for the non-error codes and c otherwise.
func (c Code) Err() error {
	if c.IsError() {
		return c
	}
	return nil
}

// IsError reports whether c is a terminal error.
func (c Code) IsError() bool {
	return c < 0
}

// IsTerminal reports whether no more work is pending for c.
func (c Code) IsTerminal() bool {
	return c != Ready && c != HardwareProcessing
}

// Kind returns the class of c.
func (c Code) Kind() Kind {
	switch c {
	case ErrWorkmemBufferTooSmall, ErrOutputBufferTooSmall, ErrInputBufferTooSmall,
		ErrTooBig, ErrInvalidRequestSize:
		return KindSizing
	case ErrInvalidArg, ErrUnsupportedHashAlg, ErrNotSupported, ErrIncompatibleHW,
		ErrOutOfRange, ErrPointNotOnCurve:
		return KindArgument
	case ErrInvalidSignature, ErrInvalidCiphertext, ErrNotInvertible,
		ErrCompositeValue, ErrRSAPQRangeCheckFail:
		return KindValidity
	case ErrTooManyAttempts, ErrReseedNeeded:
		return KindExhaustion
	case ErrHardware, ErrUnknown:
		return KindHardware
	}
	if c < 0 {
		return KindHardware
	}
	return KindNone
}
