package interceptor

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

var unaryInfo = &grpc.UnaryServerInfo{FullMethod: "/sicrypto.v1.Signature/Sign"}

func okHandler(ctx context.Context, req any) (any, error) { return "ok", nil }

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("authorization", "Bearer "+token))
}

func TestAuthUnary(t *testing.T) {
	auth := AuthUnary("secret", "/grpc.health.v1.Health/Check")

	tests := []struct {
		name string
		ctx  context.Context
		info *grpc.UnaryServerInfo
		code codes.Code
	}{
		{"valid", withToken("secret"), unaryInfo, codes.OK},
		{"wrong token", withToken("nope"), unaryInfo, codes.Unauthenticated},
		{"no metadata", context.Background(), unaryInfo, codes.Unauthenticated},
		{"no header", metadata.NewIncomingContext(context.Background(), metadata.MD{}), unaryInfo, codes.Unauthenticated},
		{"missing bearer", metadata.NewIncomingContext(context.Background(),
			metadata.Pairs("authorization", "secret")), unaryInfo, codes.Unauthenticated},
		{"public method", context.Background(), &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth(tt.ctx, nil, tt.info, okHandler)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestRateLimitPerPeer(t *testing.T) {
	l := newLimiter(2)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "buckets are per client")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.allow("a"), "refilled one token")
	assert.False(t, l.allow("a"))
}

func TestRateLimitUnary(t *testing.T) {
	rl := RateLimitUnary(1)
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}})

	_, err := rl(ctx, nil, unaryInfo, okHandler)
	require.NoError(t, err)
	_, err = rl(ctx, nil, unaryInfo, okHandler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	unlimited := RateLimitUnary(0)
	for range 10 {
		_, err := unlimited(ctx, nil, unaryInfo, okHandler)
		require.NoError(t, err)
	}
}

func TestRecoveryUnary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rec := RecoveryUnary(logger)

	_, err := rec(context.Background(), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "boom")
}

func TestLoggingUnary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	lg := LoggingUnary(logger)

	resp, err := lg(context.Background(), nil, unaryInfo, okHandler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Contains(t, buf.String(), `"code":"OK"`)

	buf.Reset()
	_, err = lg(context.Background(), nil, unaryInfo, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "invalid signature")
	})
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"code":"InvalidArgument"`)
	assert.Contains(t, buf.String(), "invalid signature")
}
