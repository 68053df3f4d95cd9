// Package server exposes the engine over gRPC. Services are described by
// hand written grpc.ServiceDesc tables whose messages are
// google.protobuf.Struct values, so any gRPC client can call them without
// generated stubs. Byte fields travel as standard base64 strings and
// timestamps as RFC 3339 strings.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/sicrypto/internal/crypto"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/keystore"
	sistatus "github.com/glinharesb/sicrypto/internal/status"
)

const namespace = "sicrypto.v1."

// service is implemented by every server in this package.
type service interface {
	desc() *grpc.ServiceDesc
}

// Register adds services to r.
func Register(r grpc.ServiceRegistrar, services ...service) {
	for _, s := range services {
		r.RegisterService(s.desc(), s)
	}
}

// fields is a decoded request message.
type fields map[string]*structpb.Value

func (f fields) str(name string) string {
	return f[name].GetStringValue()
}

func (f fields) number(name string) int {
	return int(f[name].GetNumberValue())
}

func (f fields) flag(name string) bool {
	return f[name].GetBoolValue()
}

func (f fields) bytes(name string) ([]byte, error) {
	s := f.str(name)
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, invalidArg("field %s: %v", name, err)
	}
	return b, nil
}

func (f fields) list(name string) []*structpb.Value {
	return f[name].GetListValue().GetValues()
}

func (f fields) labels(name string) map[string]string {
	src := f[name].GetStructValue().GetFields()
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v.GetStringValue()
	}
	return out
}

func (f fields) timestamp(name string) (time.Time, error) {
	s := f.str(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, invalidArg("field %s: %v", name, err)
	}
	return t, nil
}

// hash resolves the named hash, or def when the field is empty.
func (f fields) hash(name string, def *hsm.HashAlgorithm) (*hsm.HashAlgorithm, error) {
	s := f.str(name)
	if s == "" {
		return def, nil
	}
	h, ok := hsm.HashByName(s)
	if !ok {
		return nil, invalidArg("unknown hash %q", s)
	}
	return h, nil
}

func labelsValue(labels map[string]string) map[string]any {
	out := make(map[string]any, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func timeValue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type unaryFunc[S any] func(srv S, ctx context.Context, req fields) (map[string]any, error)

func unary[S any](serviceName, method string, fn unaryFunc[S]) grpc.MethodDesc {
	info := &grpc.UnaryServerInfo{FullMethod: "/" + serviceName + "/" + method}
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, icpt grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				out, err := fn(srv.(S), ctx, req.(*structpb.Struct).GetFields())
				if err != nil {
					return nil, rpcError(err)
				}
				return newMessage(out)
			}
			if icpt == nil {
				return handler(ctx, in)
			}
			info := *info
			info.Server = srv
			return icpt(ctx, in, &info, handler)
		},
	}
}

type streamFunc[S any] func(srv S, ctx context.Context, req fields, send func(map[string]any) error) error

// serverStream describes a call that takes one request and streams
// responses until fn returns.
func serverStream[S any](method string, fn streamFunc[S]) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			send := func(m map[string]any) error {
				msg, err := newMessage(m)
				if err != nil {
					return err
				}
				return stream.SendMsg(msg)
			}
			if err := fn(srv.(S), stream.Context(), in.GetFields(), send); err != nil {
				return rpcError(err)
			}
			return nil
		},
	}
}

func newMessage(m map[string]any) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return msg, nil
}

func invalidArg(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// rpcError maps an operation error onto a gRPC status. Engine status codes
// are grouped by their Kind.
func rpcError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code sistatus.Code
	switch {
	case errors.Is(err, keystore.ErrKeyNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, keystore.ErrKeyInactive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, crypto.ErrUnsupportedAlgorithm):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &code):
		return status.Error(kindCode(code), err.Error())
	}
	return status.Errorf(codes.Internal, "%v", err)
}

func kindCode(c sistatus.Code) codes.Code {
	if c == sistatus.ErrNotSupported {
		return codes.Unimplemented
	}
	switch c.Kind() {
	case sistatus.KindSizing, sistatus.KindArgument, sistatus.KindValidity:
		return codes.InvalidArgument
	case sistatus.KindExhaustion:
		return codes.ResourceExhausted
	}
	return codes.Internal
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// requireActive fetches id and checks that it may be used for a new signature
// or encryption.
func requireActive(store keystore.Store, id string) (*keystore.KeyEntry, error) {
	entry, err := store.Get(id)
	if err != nil {
		return nil, err
	}
	if entry.Status != keystore.StatusActive {
		return nil, fmt.Errorf("key %s is %s: %w", id, entry.Status, keystore.ErrKeyInactive)
	}
	return entry, nil
}
