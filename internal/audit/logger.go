package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glinharesb/sicrypto/internal/status"
)

// Entry represents an audit log entry.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Operation   string            `json:"operation"`
	KeyID       string            `json:"key_id,omitempty"`
	Algorithm   string            `json:"algorithm,omitempty"`
	Status      string            `json:"status"`
	Code        int               `json:"code"`
	Error       string            `json:"error,omitempty"`
	PeerAddress string            `json:"peer_address,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Record is what a caller reports about one operation. Err is the
// operation's result; engine status codes are kept in Entry.Code.
type Record struct {
	Operation string
	KeyID     string
	Algorithm string
	Peer      string
	Err       error
	Metadata  map[string]string
}

// Filter selects entries in Query. Zero fields match everything.
type Filter struct {
	KeyID        string
	Operation    string
	Start, End   time.Time
	Limit        int
	FailuresOnly bool
}

func (f Filter) match(e Entry) bool {
	switch {
	case f.KeyID != "" && e.KeyID != f.KeyID:
		return false
	case f.Operation != "" && e.Operation != f.Operation:
		return false
	case !f.Start.IsZero() && e.Timestamp.Before(f.Start):
		return false
	case !f.End.IsZero() && e.Timestamp.After(f.End):
		return false
	case f.FailuresOnly && e.Status == "OK":
		return false
	}
	return true
}

// outcome maps an operation result to the status name and engine code
// recorded in the log.
func outcome(err error) (string, int) {
	var code status.Code
	switch {
	case err == nil:
		return "OK", int(status.OK)
	case errors.As(err, &code):
		return code.String(), int(code)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CANCELED", int(status.ErrUnknown)
	}
	return "ERROR", int(status.ErrUnknown)
}

// Subscriber receives audit entries via a channel.
type Subscriber struct {
	C  chan Entry
	id string
}

// Logger is an async audit logger that decouples the critical path from log writes.
type Logger struct {
	entries   chan Entry
	out       io.Writer
	retention int

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	store       []Entry

	done chan struct{}
}

// NewLogger creates a logger with the given buffer size and output writer.
// At most retention entries are kept for Query; zero keeps everything.
func NewLogger(bufferSize, retention int, out io.Writer) *Logger {
	l := &Logger{
		entries:     make(chan Entry, bufferSize),
		out:         out,
		retention:   retention,
		subscribers: make(map[string]*Subscriber),
		done:        make(chan struct{}),
	}
	go l.processLoop()
	return l
}

// Log sends an entry to the async processing pipeline. Non-blocking if buffer has capacity.
func (l *Logger) Log(rec Record) {
	st, code := outcome(rec.Err)
	entry := Entry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Operation:   rec.Operation,
		KeyID:       rec.KeyID,
		Algorithm:   rec.Algorithm,
		Status:      st,
		Code:        code,
		PeerAddress: rec.Peer,
		Metadata:    rec.Metadata,
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	}

	select {
	case l.entries <- entry:
	default:
		slog.Warn("audit log buffer full, dropping entry", "operation", rec.Operation)
	}
}

// Subscribe creates a new subscriber that receives entries via a buffered channel.
func (l *Logger) Subscribe() *Subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &Subscriber{
		C:  make(chan Entry, 64),
		id: uuid.NewString(),
	}
	l.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber.
func (l *Logger) Unsubscribe(sub *Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.subscribers, sub.id)
	close(sub.C)
}

// Query returns stored audit entries matching f, newest first.
func (l *Logger) Query(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []Entry
	for i := len(l.store) - 1; i >= 0; i-- {
		e := l.store[i]
		if !f.match(e) {
			continue
		}
		results = append(results, e)
		if f.Limit > 0 && len(results) >= f.Limit {
			break
		}
	}
	return results
}

// Close stops the processing loop and waits for it to finish.
func (l *Logger) Close() {
	close(l.entries)
	<-l.done
}

func (l *Logger) processLoop() {
	defer close(l.done)

	for entry := range l.entries {
		// Store entry
		l.mu.Lock()
		l.store = append(l.store, entry)
		if l.retention > 0 && len(l.store) > l.retention {
			l.store = append(l.store[:0], l.store[len(l.store)-l.retention:]...)
		}
		l.mu.Unlock()

		// Write to output
		if l.out != nil {
			data, err := json.Marshal(entry)
			if err != nil {
				slog.Error("audit marshal", "error", err)
				continue
			}
			fmt.Fprintf(l.out, "%s\n", data)
		}

		// Fan-out to subscribers (non-blocking)
		l.mu.RLock()
		for _, sub := range l.subscribers {
			select {
			case sub.C <- entry:
			default:
				// subscriber too slow, drop
			}
		}
		l.mu.RUnlock()
	}
}
