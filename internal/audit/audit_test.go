package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glinharesb/sicrypto/internal/status"
)

// Tests use logger.Close() to drain entries instead of time.Sleep,
// ensuring deterministic behavior with the race detector.

func TestLogAndQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(100, 0, &buf)

	peer := "127.0.0.1:50051"
	logger.Log(Record{Operation: "GenerateKey", KeyID: "key-1", Algorithm: "ECDSA", Peer: peer})
	logger.Log(Record{Operation: "Sign", KeyID: "key-1", Algorithm: "ECDSA", Peer: peer})
	logger.Log(Record{Operation: "GenerateKey", KeyID: "key-2", Algorithm: "Ed25519", Peer: peer})

	// Close drains the channel and waits for the loop to finish.
	logger.Close()

	entries := logger.Query(Filter{KeyID: "key-1"})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for key-1, got %d", len(entries))
	}

	entries = logger.Query(Filter{Operation: "Sign"})
	if len(entries) != 1 {
		t.Fatalf("expected 1 Sign entry, got %d", len(entries))
	}

	// Safe to read buf now - processLoop has exited.
	if !strings.Contains(buf.String(), "GenerateKey") {
		t.Fatal("expected GenerateKey in output")
	}
}

func TestQueryLimit(t *testing.T) {
	logger := NewLogger(100, 0, nil)

	for i := range 10 {
		logger.Log(Record{Operation: "Sign", KeyID: "key-1", Metadata: map[string]string{"i": string(rune('0' + i))}})
	}
	logger.Close()

	entries := logger.Query(Filter{Limit: 3})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestSubscribeReceivesEntries(t *testing.T) {
	logger := NewLogger(100, 0, nil)
	defer logger.Close()

	sub := logger.Subscribe()
	defer logger.Unsubscribe(sub)

	logger.Log(Record{Operation: "Sign", KeyID: "key-1"})

	select {
	case entry := <-sub.C:
		if entry.Operation != "Sign" {
			t.Fatalf("expected Sign, got %s", entry.Operation)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive entry")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	logger := NewLogger(100, 0, nil)
	defer logger.Close()

	sub := logger.Subscribe()
	logger.Unsubscribe(sub)

	// Channel should be closed
	_, ok := <-sub.C
	if ok {
		t.Fatal("expected closed channel")
	}
}

func TestLogEntryHasID(t *testing.T) {
	logger := NewLogger(100, 0, nil)

	logger.Log(Record{Operation: "Encrypt", KeyID: "key-1"})
	logger.Close()

	entries := logger.Query(Filter{})
	if len(entries) != 1 {
		t.Fatal("expected 1 entry")
	}
	if entries[0].ID == "" {
		t.Fatal("entry should have an ID")
	}
}

func TestStatusCodes(t *testing.T) {
	logger := NewLogger(100, 0, nil)

	logger.Log(Record{Operation: "Verify", KeyID: "key-1", Err: fmt.Errorf("verify: %w", status.ErrInvalidSignature)})
	logger.Log(Record{Operation: "Sign", KeyID: "key-1", Err: context.Canceled})
	logger.Log(Record{Operation: "Sign", KeyID: "key-1", Err: errors.New("boom")})
	logger.Log(Record{Operation: "Sign", KeyID: "key-1"})
	logger.Close()

	failures := logger.Query(Filter{FailuresOnly: true})
	if len(failures) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(failures))
	}
	verify := logger.Query(Filter{Operation: "Verify"})[0]
	if verify.Status != "invalid signature" || verify.Code != int(status.ErrInvalidSignature) {
		t.Fatalf("unexpected verify entry: %+v", verify)
	}
	if verify.Error == "" {
		t.Fatal("failed entry should carry the error text")
	}
	newest := logger.Query(Filter{Limit: 1})[0]
	if newest.Status != "OK" || newest.Code != 0 {
		t.Fatalf("unexpected newest entry: %+v", newest)
	}
}

func TestRetention(t *testing.T) {
	logger := NewLogger(100, 4, nil)
	for i := range 10 {
		logger.Log(Record{Operation: "Sign", KeyID: fmt.Sprintf("key-%d", i)})
	}
	logger.Close()

	entries := logger.Query(Filter{})
	if len(entries) != 4 {
		t.Fatalf("expected 4 retained entries, got %d", len(entries))
	}
	if entries[0].KeyID != "key-9" || entries[3].KeyID != "key-6" {
		t.Fatalf("wrong entries retained: %s .. %s", entries[0].KeyID, entries[3].KeyID)
	}
}

func TestQueryTimeRange(t *testing.T) {
	logger := NewLogger(100, 0, nil)
	logger.Log(Record{Operation: "Sign"})
	logger.Close()

	if got := logger.Query(Filter{Start: time.Now().Add(time.Hour)}); len(got) != 0 {
		t.Fatalf("future start should match nothing, got %d", len(got))
	}
	if got := logger.Query(Filter{End: time.Now().Add(-time.Hour)}); len(got) != 0 {
		t.Fatalf("past end should match nothing, got %d", len(got))
	}
}
