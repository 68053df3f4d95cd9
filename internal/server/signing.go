package server

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strconv"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/sicrypto/internal/audit"
	"github.com/glinharesb/sicrypto/internal/crypto"
	"github.com/glinharesb/sicrypto/internal/keystore"
	sistatus "github.com/glinharesb/sicrypto/internal/status"
)

type SigningServer struct {
	store  keystore.Store
	engine *crypto.Engine
	audit  *audit.Logger
}

func NewSigningServer(store keystore.Store, engine *crypto.Engine, a *audit.Logger) *SigningServer {
	return &SigningServer{
		store:  store,
		engine: engine,
		audit:  a,
	}
}

var signingDesc = grpc.ServiceDesc{
	ServiceName: namespace + "Signing",
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		unary(namespace+"Signing", "Sign", (*SigningServer).sign),
		unary(namespace+"Signing", "Verify", (*SigningServer).verify),
		unary(namespace+"Signing", "BatchSign", (*SigningServer).batchSign),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSign",
			Handler:       streamSign,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func (s *SigningServer) desc() *grpc.ServiceDesc { return &signingDesc }

// signData signs data, or a precomputed digest of the key's hash when
// prehashed is set.
func (s *SigningServer) signData(ctx context.Context, entry *keystore.KeyEntry, data []byte, prehashed bool) ([]byte, error) {
	if prehashed {
		return s.engine.SignDigest(ctx, entry.Key, data)
	}
	return s.engine.Sign(ctx, entry.Key, data)
}

func (s *SigningServer) sign(ctx context.Context, req fields) (map[string]any, error) {
	data, err := req.bytes("data")
	if err != nil {
		return nil, err
	}
	entry, err := requireActive(s.store, req.str("key_id"))
	if err != nil {
		return nil, err
	}

	signature, err := s.signData(ctx, entry, data, req.flag("prehashed"))
	s.audit.Log(audit.Record{Operation: "Sign", KeyID: entry.ID, Algorithm: entry.Algorithm(), Peer: peerAddr(ctx), Err: err})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"key_id":    entry.ID,
		"algorithm": entry.Algorithm(),
		"signature": signature,
	}, nil
}

// verify reports a signature mismatch as valid=false rather than an error.
// Rotated and deactivated keys still verify.
func (s *SigningServer) verify(ctx context.Context, req fields) (map[string]any, error) {
	data, err := req.bytes("data")
	if err != nil {
		return nil, err
	}
	signature, err := req.bytes("signature")
	if err != nil {
		return nil, err
	}
	entry, err := s.store.Get(req.str("key_id"))
	if err != nil {
		return nil, err
	}

	if req.flag("prehashed") {
		err = s.engine.VerifyDigest(ctx, entry.Public, data, signature)
	} else {
		err = s.engine.Verify(ctx, entry.Public, data, signature)
	}
	s.audit.Log(audit.Record{Operation: "Verify", KeyID: entry.ID, Algorithm: entry.Algorithm(), Peer: peerAddr(ctx), Err: err})
	switch {
	case err == nil:
		return map[string]any{"valid": true}, nil
	case errors.Is(err, sistatus.ErrInvalidSignature):
		return map[string]any{"valid": false}, nil
	}
	return nil, err
}

func (s *SigningServer) batchSign(ctx context.Context, req fields) (map[string]any, error) {
	entry, err := requireActive(s.store, req.str("key_id"))
	if err != nil {
		return nil, err
	}
	prehashed := req.flag("prehashed")

	items := req.list("data")
	results := make([]any, len(items))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item *structpb.Value) {
			defer wg.Done()
			defer func() { <-sem }()

			data, err := fields{"data": item}.bytes("data")
			if err == nil {
				var signature []byte
				signature, err = s.signData(ctx, entry, data, prehashed)
				if err == nil {
					results[i] = map[string]any{"signature": signature}
					return
				}
			}
			results[i] = map[string]any{"error": err.Error()}
		}(i, item)
	}

	wg.Wait()
	s.audit.Log(audit.Record{
		Operation: "BatchSign",
		KeyID:     entry.ID,
		Algorithm: entry.Algorithm(),
		Peer:      peerAddr(ctx),
		Metadata:  map[string]string{"count": strconv.Itoa(len(items))},
	})

	return map[string]any{"results": results}, nil
}

// streamSign answers each request on the stream with a signature or an
// error message; a bad request does not end the stream.
func streamSign(srv any, stream grpc.ServerStream) error {
	s := srv.(*SigningServer)
	ctx := stream.Context()
	for {
		in := new(structpb.Struct)
		err := stream.RecvMsg(in)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		out, err := s.sign(ctx, in.GetFields())
		if err != nil {
			out = map[string]any{"error": rpcError(err).Error()}
		}
		msg, err := newMessage(out)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
}
