// Package activity records the session audit trail without blocking the
// operations that produce it.
package activity

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

const defaultBuffer = 256

// Sink persists activity entries.
type Sink interface {
	AppendActivity(ctx context.Context, entry domain.ActivityEntry) (int64, error)
}

// Options configures a Log.
type Options struct {
	// Buffer bounds the number of queued entries. Defaults to 256.
	Buffer int
	// Clock stamps entries. Defaults to time.Now.
	Clock func() time.Time
	// WriteTimeout bounds each sink write. Zero means no bound.
	WriteTimeout time.Duration
}

// Log queues entries and appends them to the sink from a single worker, so
// entries reach the sink in the order they were recorded. Failed writes are
// logged and dropped.
type Log struct {
	sink         Sink
	clock        func() time.Time
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}
}

type job struct {
	entry   domain.ActivityEntry
	flushed chan struct{}
}

// New starts a Log writing to sink.
func New(sink Sink, opts Options) *Log {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	l := &Log{
		sink:         sink,
		clock:        clock,
		writeTimeout: opts.WriteTimeout,
		queue:        make(chan job, buffer),
		done:         make(chan struct{}),
	}
	go l.run()
	return l
}

// Record enqueues an entry and returns immediately. It is a no-op on a nil
// or closed Log.
func (l *Log) Record(sessionID, userID string, action domain.ActionType, data map[string]any) {
	if l == nil {
		return
	}
	if !action.Valid() {
		log.Printf("activity: drop %q for session %s: unknown action type", action, sessionID)
		return
	}
	entry := domain.ActivityEntry{
		SessionID:  sessionID,
		UserID:     userID,
		ActionType: action,
		ActionData: data,
		Timestamp:  l.clock().UTC(),
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- job{entry: entry}:
	default:
		log.Printf("activity: queue full, drop %s for session %s", action, sessionID)
	}
}

// Flush waits until every entry recorded before the call has been written.
func (l *Log) Flush(ctx context.Context) error {
	if l == nil {
		return nil
	}
	marker := job{flushed: make(chan struct{})}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil
	}
	select {
	case l.queue <- marker:
		l.mu.RUnlock()
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx to
// end.
func (l *Log) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Log) run() {
	defer close(l.done)
	for j := range l.queue {
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		l.write(j.entry)
	}
}

func (l *Log) write(entry domain.ActivityEntry) {
	if l.sink == nil {
		return
	}
	ctx := context.Background()
	if l.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.writeTimeout)
		defer cancel()
	}
	if _, err := l.sink.AppendActivity(ctx, entry); err != nil {
		log.Printf("activity: append %s for session %s: %v", entry.ActionType, entry.SessionID, err)
	}
}
