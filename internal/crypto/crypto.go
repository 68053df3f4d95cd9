// Package crypto is the blocking front end of the task engine. Each call
// builds a task with its own workmem, drives it to completion and converts
// the final status into an error.
package crypto

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

// Engine runs operations against one hsm.Engine.
type Engine struct {
	hw     hsm.Engine
	rand   io.Reader
	logger *slog.Logger
}

type Option func(*Engine)

// WithRandom sets the randomness tasks draw from.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.rand = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New returns an Engine backed by hw, or by hsm.Default() when hw is nil.
func New(hw hsm.Engine, opts ...Option) *Engine {
	e := &Engine{hw: hw, rand: rand.Reader, logger: slog.Default()}
	if e.hw == nil {
		e.hw = hsm.Default()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) newTask(mem int) *task.Task {
	return task.New(make([]byte, mem),
		task.WithEngine(e.hw), task.WithRandom(e.rand), task.WithLogger(e.logger))
}

// exec configures a task, feeds it input and runs final. It returns once the
// task reaches a terminal status or ctx is done. A task abandoned on
// cancellation still runs to completion in the background so engine slots
// are released.
func (e *Engine) exec(ctx context.Context, op string, mem int, configure func(*task.Task), final func(*task.Task), input ...[]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := e.newTask(mem)
	configure(t)
	if c := t.Code(); c != status.Ready {
		return fmt.Errorf("%s: %w", op, c)
	}
	for _, in := range input {
		t.Consume(in)
	}
	final(t)
	if err := wait(ctx, t); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func run(t *task.Task) { t.Run() }

func produce(out []byte) func(*task.Task) {
	return func(t *task.Task) { t.Produce(out) }
}

func wait(ctx context.Context, t *task.Task) error {
	done := make(chan status.Code, 1)
	go func() { done <- t.Wait() }()
	select {
	case c := <-done:
		if c == status.Ready {
			return nil
		}
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
