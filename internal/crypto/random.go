package crypto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/glinharesb/sicrypto/internal/drbg"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

const (
	DRBGHash = "hash"
	DRBGCTR  = "ctr"

	// entropySize is the seed material drawn per (re)seed. It matches the
	// CTR_DRBG seed length for AES-256 and covers the Hash_DRBG security
	// strength plus nonce.
	entropySize = 48
)

// Generator is a DRBG that reseeds itself from the engine's randomness
// every Interval generate calls. It is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	t        *task.Task
	entropy  io.Reader
	interval uint64
	calls    uint64
	kind     string
}

// NewGenerator instantiates a DRBG of the given kind ("hash" with SHA-256
// or "ctr" with AES-256). interval is the number of Generate calls between
// reseeds; zero disables periodic reseeding.
func (e *Engine) NewGenerator(kind string, interval uint64) (*Generator, error) {
	var t *task.Task
	switch kind {
	case DRBGHash, "":
		kind = DRBGHash
		t = e.newTask(drbg.HashWorkmemSize(hsm.SHA256))
		drbg.CreateHash(t, hsm.SHA256)
	case DRBGCTR:
		t = e.newTask(drbg.CTRWorkmemSize(32))
		drbg.CreateCTR(t, 32)
	default:
		return nil, fmt.Errorf("drbg %q: %w", kind, ErrUnsupportedAlgorithm)
	}
	if c := t.Code(); c != status.Ready {
		return nil, fmt.Errorf("create drbg: %w", c)
	}
	g := &Generator{t: t, entropy: e.rand, interval: interval, kind: kind}
	if err := g.seed(); err != nil {
		return nil, fmt.Errorf("instantiate drbg: %w", err)
	}
	return g, nil
}

// Kind reports which DRBG backs g.
func (g *Generator) Kind() string { return g.kind }

// seed runs instantiate or reseed, whichever the DRBG offers next.
func (g *Generator) seed() error {
	buf := make([]byte, entropySize)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return fmt.Errorf("read entropy: %w", err)
	}
	g.t.Consume(buf)
	g.t.Run()
	c := g.t.Wait()
	clear(buf)
	if c.IsError() {
		drbg.Rearm(g.t)
		return c
	}
	g.calls = 0
	g.t.Logger().Debug("drbg seeded", "kind", g.kind)
	return nil
}

// Reseed mixes fresh entropy into the state.
func (g *Generator) Reseed() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seed()
}

// Generate returns n pseudorandom bytes. Requests larger than
// drbg.MaxRequestSize are served in several generate calls.
func (g *Generator) Generate(ctx context.Context, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("generate %d bytes: %w", n, status.ErrInvalidArg)
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for off := 0; off < n; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.interval > 0 && g.calls >= g.interval {
			if err := g.seed(); err != nil {
				return nil, fmt.Errorf("reseed drbg: %w", err)
			}
		}
		chunk := min(n-off, drbg.MaxRequestSize)
		g.t.Produce(out[off : off+chunk])
		c := g.t.Wait()
		switch {
		case !c.IsError():
			g.calls++
			off += chunk
		case errors.Is(c, status.ErrReseedNeeded):
			drbg.Rearm(g.t)
			if err := g.seed(); err != nil {
				return nil, fmt.Errorf("reseed drbg: %w", err)
			}
		default:
			drbg.Rearm(g.t)
			return nil, fmt.Errorf("drbg generate: %w", c)
		}
	}
	return out, nil
}

// Read implements io.Reader.
func (g *Generator) Read(p []byte) (int, error) {
	b, err := g.Generate(context.Background(), len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, b), nil
}
