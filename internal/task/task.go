// Package task implements the cooperative scheduler every algorithm in
// sicrypto runs on.
//
// A Task owns a caller-provided workmem buffer and a stack of
// continuations. Algorithms configure the task's Actions in their create
// function, start hardware or hash work, and push continuations that run
// once that work completes. Status and Wait drive the chain: after every
// status change they pop continuations until one leaves the task waiting on
// hardware again, or the stack is empty.
package task

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
)

// Continuation is a deferred step. Its return value becomes the task status.
type Continuation func(t *Task) status.Code

// Actions are the entry points an algorithm exposes while the task is Ready.
// Status and Wait report on outstanding work.
type Actions struct {
	Status     func(t *Task) status.Code
	Wait       func(t *Task) status.Code
	Consume    func(t *Task, data []byte)
	Run        func(t *Task)
	Produce    func(t *Task, out []byte)
	PartialRun func(t *Task)
}

// Task is a single in-flight cryptographic operation. It is not safe for
// concurrent use.
type Task struct {
	id      uuid.UUID
	code    status.Code
	actions Actions
	workmem []byte
	wq      []Continuation
	output  []byte

	req    hsm.Request
	hash   *hsm.HashContext
	params any

	engine hsm.Engine
	rand   io.Reader
	logger *slog.Logger
}

// Option configures the environment of a Task.
type Option func(*Task)

// WithEngine selects the public-key engine. The default is hsm.Default().
func WithEngine(e hsm.Engine) Option {
	return func(t *Task) { t.engine = e }
}

// WithRandom selects the system randomness source. The default is
// crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(t *Task) { t.rand = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Task) { t.logger = l }
}

// New binds a task to its workmem. The task starts Ready with no actions;
// a create function must configure it before use.
func New(workmem []byte, opts ...Option) *Task {
	t := &Task{
		id:      uuid.New(),
		code:    status.Ready,
		workmem: workmem,
		rand:    rand.Reader,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.engine == nil {
		t.engine = hsm.Default()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("task", t.id.String())
	return t
}

func (t *Task) ID() uuid.UUID          { return t.id }
func (t *Task) Workmem() []byte        { return t.workmem }
func (t *Task) Engine() hsm.Engine     { return t.engine }
func (t *Task) Random() io.Reader      { return t.rand }
func (t *Task) Logger() *slog.Logger   { return t.logger }
func (t *Task) Code() status.Code      { return t.code }
func (t *Task) Actions() Actions       { return t.actions }
func (t *Task) Output() []byte         { return t.output }
func (t *Task) Request() hsm.Request   { return t.req }
func (t *Task) Hash() *hsm.HashContext { return t.hash }

// Params returns the algorithm specific state attached to the task.
func (t *Task) Params() any { return t.params }

// SetParams attaches algorithm specific state to the task.
func (t *Task) SetParams(p any) { t.params = p }

// SetHash replaces the active hash context.
func (t *Task) SetHash(h *hsm.HashContext) { t.hash = h }

// SetCode overrides the status. Algorithms use it to re-arm a task (Ready)
// between chained sub-operations.
func (t *Task) SetCode(c status.Code) { t.code = c }

// Configure installs a new set of actions and makes the task Ready. Pending
// continuations are kept so a sub-operation can run before its parent's
// next step.
func (t *Task) Configure(a Actions) {
	t.actions = a
	t.code = status.Ready
}

// SetActions replaces the actions without touching the status.
func (t *Task) SetActions(a Actions) { t.actions = a }

// RequireWorkmem fails the task with ErrWorkmemBufferTooSmall unless the
// workmem holds at least n bytes.
func (t *Task) RequireWorkmem(n int) bool {
	if len(t.workmem) < n {
		t.MarkFinal(status.ErrWorkmemBufferTooSmall)
		return false
	}
	return true
}

// MarkFinal records a terminal status and returns it. Later Status and Wait
// calls report c until the task is configured again.
func (t *Task) MarkFinal(c status.Code) status.Code {
	t.code = c
	t.actions = Actions{Status: reportCode, Wait: reportCode}
	if c.IsError() {
		t.logger.Debug("task failed", "status", c.String())
	}
	return c
}

func reportCode(t *Task) status.Code { return t.code }

// RunAfter pushes a continuation. Continuations run in reverse order of
// registration.
func (t *Task) RunAfter(c Continuation) {
	t.wq = append(t.wq, c)
}

// Pending returns the number of queued continuations.
func (t *Task) Pending() int { return len(t.wq) }

func (t *Task) mustAction(name string, set bool) {
	if !set {
		panic(fmt.Sprintf("task: %s is not supported by the configured operation", name))
	}
}

// Consume passes input data to the operation. Ignored unless Ready.
func (t *Task) Consume(data []byte) {
	if t.code != status.Ready {
		return
	}
	t.mustAction("consume", t.actions.Consume != nil)
	t.actions.Consume(t, data)
}

// Run starts the operation. Ignored unless Ready.
func (t *Task) Run() {
	if t.code != status.Ready {
		return
	}
	t.mustAction("run", t.actions.Run != nil)
	t.code = status.HardwareProcessing
	t.actions.Run(t)
}

// Produce starts the operation and directs its result to out. Ignored
// unless Ready.
func (t *Task) Produce(out []byte) {
	if t.code != status.Ready {
		return
	}
	t.mustAction("produce", t.actions.Produce != nil)
	t.output = out
	t.code = status.HardwareProcessing
	t.actions.Produce(t, out)
}

// PartialRun processes the input consumed so far and returns the task to
// Ready so more input can follow. Ignored unless Ready.
func (t *Task) PartialRun() {
	if t.code != status.Ready {
		return
	}
	t.mustAction("partial run", t.actions.PartialRun != nil)
	t.code = status.HardwareProcessing
	t.actions.PartialRun(t)
}

// Status polls the operation without blocking.
func (t *Task) Status() status.Code {
	if t.code == status.HardwareProcessing && t.actions.Status != nil {
		t.code = t.actions.Status(t)
	}
	return t.wakeNext()
}

// Wait blocks until the operation leaves HardwareProcessing.
func (t *Task) Wait() status.Code {
	for {
		if t.code == status.HardwareProcessing && t.actions.Wait != nil {
			t.code = t.actions.Wait(t)
		}
		t.wakeNext()
		if t.code != status.HardwareProcessing || t.actions.Wait == nil {
			return t.code
		}
	}
}

// wakeNext pops continuations while the task is neither waiting on hardware
// nor Ready for more input.
func (t *Task) wakeNext() status.Code {
	for len(t.wq) > 0 && t.code != status.HardwareProcessing && t.code != status.Ready {
		last := len(t.wq) - 1
		c := t.wq[last]
		t.wq[last] = nil
		t.wq = t.wq[:last]
		t.code = c(t)
	}
	return t.code
}
