package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/glinharesb/sicrypto/internal/crypto"
)

// MaxRandomBytes bounds a single GenerateRandom request.
const MaxRandomBytes = 1 << 16

type RandomServer struct {
	gen *crypto.Generator
}

func NewRandomServer(gen *crypto.Generator) *RandomServer {
	return &RandomServer{gen: gen}
}

var randomDesc = grpc.ServiceDesc{
	ServiceName: namespace + "Random",
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		unary(namespace+"Random", "GenerateRandom", (*RandomServer).generate),
	},
}

func (s *RandomServer) desc() *grpc.ServiceDesc { return &randomDesc }

func (s *RandomServer) generate(ctx context.Context, req fields) (map[string]any, error) {
	n := req.number("length")
	if n <= 0 || n > MaxRandomBytes {
		return nil, invalidArg("length must be 1-%d", MaxRandomBytes)
	}
	data, err := s.gen.Generate(ctx, n)
	if err != nil {
		return nil, err
	}
	return map[string]any{"data": data, "drbg": s.gen.Kind()}, nil
}
