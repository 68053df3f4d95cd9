package task

import (
	"io"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
)

// Acquire reserves an engine request for cmd. On failure the task is marked
// final with the engine's status.
func (t *Task) Acquire(cmd hsm.Command) (hsm.Request, bool) {
	req, code := t.engine.Acquire(cmd)
	if code != status.OK {
		t.MarkFinal(code)
		return nil, false
	}
	return req, true
}

// Inputs lists operand slots of req, releasing it and failing the task when
// the engine refuses the sizes.
func (t *Task) Inputs(req hsm.Request, sizes ...int) ([]hsm.Slot, bool) {
	slots, code := req.ListInputs(sizes...)
	if code != status.OK {
		req.Release()
		t.MarkFinal(code)
		return nil, false
	}
	return slots, true
}

// CurveInputs lists the operand slots of an elliptic curve request.
func (t *Task) CurveInputs(req hsm.Request, c *hsm.Curve) ([]hsm.Slot, bool) {
	slots, code := req.ListCurveInputs(c)
	if code != status.OK {
		req.Release()
		t.MarkFinal(code)
		return nil, false
	}
	return slots, true
}

// Submit starts req and suspends the task until the engine finishes it. The
// continuation that resumes the task must call ReleaseRequest.
func (t *Task) Submit(req hsm.Request) {
	t.req = req
	req.Run()
	t.code = status.HardwareProcessing
	t.actions = Actions{Status: requestStatus, Wait: requestWait}
}

func requestStatus(t *Task) status.Code { return t.req.Status() }
func requestWait(t *Task) status.Code   { return t.req.Wait() }

// ReleaseRequest releases the outstanding engine request, if any.
func (t *Task) ReleaseRequest() {
	if t.req != nil {
		t.req.Release()
		t.req = nil
	}
}

// AwaitRandom fills buf from the randomness source. Random generation
// completes immediately; the next continuation runs on the following
// Status or Wait call.
func (t *Task) AwaitRandom(buf []byte) {
	if _, err := io.ReadFull(t.rand, buf); err != nil {
		t.logger.Error("random source failed", "error", err)
		t.MarkFinal(status.ErrHardware)
		return
	}
	t.Complete()
}

// Complete suspends the task on work that has already finished.
func (t *Task) Complete() {
	t.code = status.HardwareProcessing
	t.actions = Actions{Status: done, Wait: done}
}

func done(*Task) status.Code { return status.OK }
