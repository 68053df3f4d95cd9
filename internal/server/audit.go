package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/glinharesb/sicrypto/internal/audit"
)

type AuditServer struct {
	logger *audit.Logger
}

func NewAuditServer(logger *audit.Logger) *AuditServer {
	return &AuditServer{logger: logger}
}

var auditDesc = grpc.ServiceDesc{
	ServiceName: namespace + "Audit",
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		unary(namespace+"Audit", "QueryAudit", (*AuditServer).queryAudit),
	},
	Streams: []grpc.StreamDesc{
		serverStream("StreamAudit", (*AuditServer).streamAudit),
	},
}

func (s *AuditServer) desc() *grpc.ServiceDesc { return &auditDesc }

func (s *AuditServer) queryAudit(ctx context.Context, req fields) (map[string]any, error) {
	start, err := req.timestamp("start_time")
	if err != nil {
		return nil, err
	}
	end, err := req.timestamp("end_time")
	if err != nil {
		return nil, err
	}

	entries := s.logger.Query(audit.Filter{
		KeyID:        req.str("key_id"),
		Operation:    req.str("operation"),
		Start:        start,
		End:          end,
		Limit:        req.number("limit"),
		FailuresOnly: req.flag("failures_only"),
	})

	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryValue(e))
	}
	return map[string]any{"entries": out}, nil
}

func (s *AuditServer) streamAudit(ctx context.Context, _ fields, send func(map[string]any) error) error {
	sub := s.logger.Subscribe()
	defer s.logger.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := send(auditEntryValue(entry)); err != nil {
				return err
			}
		}
	}
}

func auditEntryValue(e audit.Entry) map[string]any {
	v := map[string]any{
		"id":        e.ID,
		"timestamp": timeValue(e.Timestamp),
		"operation": e.Operation,
		"status":    e.Status,
		"code":      e.Code,
	}
	if e.KeyID != "" {
		v["key_id"] = e.KeyID
	}
	if e.Algorithm != "" {
		v["algorithm"] = e.Algorithm
	}
	if e.Error != "" {
		v["error"] = e.Error
	}
	if e.PeerAddress != "" {
		v["peer_address"] = e.PeerAddress
	}
	if len(e.Metadata) > 0 {
		v["metadata"] = labelsValue(e.Metadata)
	}
	return v
}
