package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/glinharesb/sicrypto/internal/audit"
	"github.com/glinharesb/sicrypto/internal/crypto"
	"github.com/glinharesb/sicrypto/internal/keystore"
	"github.com/glinharesb/sicrypto/internal/sig"
)

const (
	EventCreated     = "CREATED"
	EventRotated     = "ROTATED"
	EventDeactivated = "DEACTIVATED"
)

var errIsolatedRotation = errors.New("isolated keys are bound to the device secret and cannot be rotated")

type KeyManagementServer struct {
	store   keystore.Store
	engine  *crypto.Engine
	audit   *audit.Logger
	rsaBits int

	mu          sync.RWMutex
	subscribers []chan map[string]any
}

// NewKeyManagementServer returns the key lifecycle service. rsaBits is the
// modulus size for RSA requests that do not name one.
func NewKeyManagementServer(store keystore.Store, engine *crypto.Engine, a *audit.Logger, rsaBits int) *KeyManagementServer {
	if rsaBits == 0 {
		rsaBits = crypto.DefaultRSABits
	}
	return &KeyManagementServer{
		store:   store,
		engine:  engine,
		audit:   a,
		rsaBits: rsaBits,
	}
}

var keyManagementDesc = grpc.ServiceDesc{
	ServiceName: namespace + "KeyManagement",
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		unary(namespace+"KeyManagement", "GenerateKey", (*KeyManagementServer).generateKey),
		unary(namespace+"KeyManagement", "GetPublicKey", (*KeyManagementServer).getPublicKey),
		unary(namespace+"KeyManagement", "ListKeys", (*KeyManagementServer).listKeys),
		unary(namespace+"KeyManagement", "RotateKey", (*KeyManagementServer).rotateKey),
		unary(namespace+"KeyManagement", "DeactivateKey", (*KeyManagementServer).deactivateKey),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchKeyEvents", (*KeyManagementServer).watchKeyEvents),
	},
}

func (s *KeyManagementServer) desc() *grpc.ServiceDesc { return &keyManagementDesc }

func (s *KeyManagementServer) generateKey(ctx context.Context, req fields) (map[string]any, error) {
	spec := crypto.KeySpec{
		Algorithm: req.str("algorithm"),
		Curve:     req.str("curve"),
		Hash:      req.str("hash"),
		Bits:      req.number("bits"),
		SaltSize:  req.number("salt_size"),
		Index:     req.number("index"),
	}
	if spec.Algorithm == "" {
		spec.Algorithm = sig.ECDSA.Name()
	}
	entry, err := s.newEntry(ctx, spec, req.labels("labels"))
	s.audit.Log(audit.Record{Operation: "GenerateKey", KeyID: entryID(entry), Algorithm: spec.Algorithm, Peer: peerAddr(ctx), Err: err})
	if err != nil {
		return nil, err
	}

	meta := entryMeta(entry)
	s.broadcastEvent(EventCreated, meta)
	return map[string]any{"key": meta}, nil
}

// newEntry generates and stores an active key.
func (s *KeyManagementServer) newEntry(ctx context.Context, spec crypto.KeySpec, labels map[string]string) (*keystore.KeyEntry, error) {
	alg, ok := sig.Lookup(spec.Algorithm)
	if ok && spec.Bits == 0 && (alg == sig.RSAPSS || alg == sig.RSAPKCS1v15) {
		spec.Bits = s.rsaBits
	}
	key, err := s.engine.GenerateKey(ctx, spec)
	if err != nil {
		return nil, err
	}
	pub, err := s.engine.PublicKey(ctx, key)
	if err != nil {
		return nil, err
	}

	entry := &keystore.KeyEntry{
		ID:        uuid.NewString(),
		Status:    keystore.StatusActive,
		Key:       key,
		Public:    pub,
		CreatedAt: time.Now(),
		Labels:    labels,
	}
	switch {
	case key.RSA != nil:
		entry.Bits = key.RSA.Size() * 8
	case pub.EC != nil:
		entry.Curve = pub.EC.Curve.Name
	}
	if err := s.store.Put(entry); err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}
	return entry, nil
}

func entryID(e *keystore.KeyEntry) string {
	if e == nil {
		return ""
	}
	return e.ID
}

func (s *KeyManagementServer) getPublicKey(ctx context.Context, req fields) (map[string]any, error) {
	entry, err := s.store.Get(req.str("key_id"))
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"key_id":    entry.ID,
		"algorithm": entry.Algorithm(),
	}
	pem, err := crypto.MarshalPublicKeyPEM(entry.Public)
	switch {
	case err == nil:
		out["public_key_pem"] = string(pem)
	case errors.Is(err, crypto.ErrUnsupportedAlgorithm) && entry.Public.EC != nil:
		// No PKIX form; return the raw encoding.
		out["public_key"] = entry.Public.EC.X
	default:
		return nil, err
	}
	return out, nil
}

func (s *KeyManagementServer) listKeys(ctx context.Context, req fields) (map[string]any, error) {
	entries, err := s.store.List(keystore.ParseStatus(req.str("status")))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	keys := make([]any, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, entryMeta(e))
	}
	return map[string]any{"keys": keys}, nil
}

func (s *KeyManagementServer) rotateKey(ctx context.Context, req fields) (map[string]any, error) {
	old, err := requireActive(s.store, req.str("key_id"))
	if err != nil {
		return nil, err
	}
	if old.Key.Def == sig.IsolatedECDSA {
		return nil, invalidArg("%v", errIsolatedRotation)
	}

	// Same parameters as the key being replaced.
	spec := crypto.KeySpec{
		Algorithm: old.Algorithm(),
		Curve:     old.Curve,
		Bits:      old.Bits,
		SaltSize:  old.Key.SaltSize,
	}
	if old.Key.Hash != nil {
		spec.Hash = old.Key.Hash.Name
	}
	next, err := s.newEntry(ctx, spec, old.Labels)
	if err == nil {
		err = s.store.Rotate(old.ID, next.ID, time.Now())
	}
	s.audit.Log(audit.Record{
		Operation: "RotateKey",
		KeyID:     old.ID,
		Algorithm: old.Algorithm(),
		Peer:      peerAddr(ctx),
		Err:       err,
		Metadata:  map[string]string{"new_key_id": entryID(next)},
	})
	if err != nil {
		return nil, err
	}

	old, err = s.store.Get(old.ID)
	if err != nil {
		return nil, err
	}
	newMeta := entryMeta(next)
	s.broadcastEvent(EventRotated, newMeta)
	return map[string]any{"old_key": entryMeta(old), "new_key": newMeta}, nil
}

func (s *KeyManagementServer) deactivateKey(ctx context.Context, req fields) (map[string]any, error) {
	id := req.str("key_id")
	if err := s.store.UpdateStatus(id, keystore.StatusDeactivated); err != nil {
		return nil, err
	}
	entry, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	meta := entryMeta(entry)
	s.broadcastEvent(EventDeactivated, meta)
	s.audit.Log(audit.Record{Operation: "DeactivateKey", KeyID: id, Algorithm: entry.Algorithm(), Peer: peerAddr(ctx)})
	return map[string]any{"key": meta}, nil
}

func (s *KeyManagementServer) watchKeyEvents(ctx context.Context, _ fields, send func(map[string]any) error) error {
	ch := make(chan map[string]any, 32)

	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for i, sub := range s.subscribers {
			if sub == ch {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-ch:
			if err := send(event); err != nil {
				return err
			}
		}
	}
}

func (s *KeyManagementServer) broadcastEvent(eventType string, meta map[string]any) {
	event := map[string]any{
		"type":      eventType,
		"key":       meta,
		"timestamp": timeValue(time.Now()),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func entryMeta(e *keystore.KeyEntry) map[string]any {
	meta := map[string]any{
		"key_id":     e.ID,
		"algorithm":  e.Algorithm(),
		"status":     e.Status.String(),
		"created_at": timeValue(e.CreatedAt),
	}
	if e.Key.Hash != nil {
		meta["hash"] = e.Key.Hash.Name
	}
	if e.Curve != "" {
		meta["curve"] = e.Curve
	}
	if e.Bits != 0 {
		meta["bits"] = e.Bits
	}
	if !e.RotatedAt.IsZero() {
		meta["rotated_at"] = timeValue(e.RotatedAt)
	}
	if e.Successor != "" {
		meta["successor"] = e.Successor
	}
	if len(e.Labels) > 0 {
		meta["labels"] = labelsValue(e.Labels)
	}
	return meta
}
