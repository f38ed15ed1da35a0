package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

type fakeSink struct {
	mu      sync.Mutex
	entries []domain.ActivityEntry
	err     error
	block   chan struct{}
}

func (s *fakeSink) AppendActivity(_ context.Context, entry domain.ActivityEntry) (int64, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.entries = append(s.entries, entry)
	return int64(len(s.entries)), nil
}

func (s *fakeSink) snapshot() []domain.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ActivityEntry(nil), s.entries...)
}

func TestLogNoopWhenNil(t *testing.T) {
	var l *Log
	l.Record("s-1", "u-1", domain.ActionHymnChanged, nil)
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestLogWritesInRecordOrderWithClock(t *testing.T) {
	sink := &fakeSink{}
	clockTime := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	l := New(sink, Options{Clock: func() time.Time { return clockTime }})
	defer l.Close(context.Background())

	l.Record("s-1", "leader", domain.ActionHymnChanged, map[string]any{"hymn_id": "h-1"})
	l.Record("s-1", "leader", domain.ActionVerseChanged, map[string]any{"verse": 2})
	l.Record("s-1", "", domain.ActionParticipantJoined, nil)
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	entries := sink.snapshot()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	want := []domain.ActionType{domain.ActionHymnChanged, domain.ActionVerseChanged, domain.ActionParticipantJoined}
	for i, action := range want {
		if entries[i].ActionType != action {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].ActionType, action)
		}
		if !entries[i].Timestamp.Equal(clockTime) {
			t.Fatalf("timestamp = %v, want %v", entries[i].Timestamp, clockTime)
		}
	}
	if entries[0].ActionData["hymn_id"] != "h-1" {
		t.Fatalf("action data = %v", entries[0].ActionData)
	}
}

func TestLogSwallowsSinkFailures(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	l := New(sink, Options{WriteTimeout: time.Second})
	l.Record("s-1", "leader", domain.ActionSessionUpdated, nil)
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(sink.snapshot()) != 0 {
		t.Fatal("expected failed write to be dropped")
	}
}

func TestLogRecordDoesNotBlockWhenFull(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	l := New(sink, Options{Buffer: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			l.Record("s-1", "leader", domain.ActionVerseChanged, map[string]any{"verse": i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	close(sink.block)
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := len(sink.snapshot()); n == 0 || n > 2 {
		t.Fatalf("written = %d, want 1 or 2", n)
	}
}

func TestLogDropsUnknownActionType(t *testing.T) {
	sink := &fakeSink{}
	l := New(sink, Options{})
	l.Record("s-1", "leader", domain.ActionType("hymn_deleted"), nil)
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(sink.snapshot()) != 0 {
		t.Fatal("expected unknown action to be dropped")
	}
}

func TestLogIgnoresRecordAfterClose(t *testing.T) {
	sink := &fakeSink{}
	l := New(sink, Options{})
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	l.Record("s-1", "leader", domain.ActionSessionUpdated, nil)
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if len(sink.snapshot()) != 0 {
		t.Fatal("expected no writes after close")
	}
}

func TestLogCloseHonoursContext(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	defer close(sink.block)
	l := New(sink, Options{})
	l.Record("s-1", "leader", domain.ActionSessionUpdated, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("close err = %v, want deadline exceeded", err)
	}
}
