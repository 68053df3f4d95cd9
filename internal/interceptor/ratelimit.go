package interceptor

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// tokenBucket implements a simple token bucket rate limiter.
type tokenBucket struct {
	tokens   float64
	lastTime time.Time
}

// limiter keeps one bucket per client address so a single busy caller
// cannot starve the engine for everyone else.
type limiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	max     float64
	buckets map[string]*tokenBucket
	now     func() time.Time
}

func newLimiter(rps int) *limiter {
	return &limiter{
		rate:    float64(rps),
		max:     float64(rps),
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tb, ok := l.buckets[key]
	if !ok {
		tb = &tokenBucket{tokens: l.max, lastTime: now}
		l.buckets[key] = tb
	}
	elapsed := now.Sub(tb.lastTime).Seconds()
	tb.lastTime = now

	tb.tokens += elapsed * l.rate
	if tb.tokens > l.max {
		tb.tokens = l.max
	}

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

func clientKey(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}

// RateLimitUnary returns a unary interceptor that enforces requests per
// second for each client address. rps <= 0 disables limiting.
func RateLimitUnary(rps int) grpc.UnaryServerInterceptor {
	if rps <= 0 {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	l := newLimiter(rps)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !l.allow(clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// RateLimitStream returns a stream interceptor that enforces requests per
// second for each client address.
func RateLimitStream(rps int) grpc.StreamServerInterceptor {
	if rps <= 0 {
		return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			return handler(srv, ss)
		}
	}
	l := newLimiter(rps)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !l.allow(clientKey(ss.Context())) {
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(srv, ss)
	}
}
