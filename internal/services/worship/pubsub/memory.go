package pubsub

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

const defaultSubscriberBuffer = 32

// MemoryBus is an in-process Bus. Each subscriber has its own FIFO buffer;
// when it is full the oldest pending update of the incoming kind is dropped,
// since every update carries a full snapshot of its kind.
type MemoryBus struct {
	mu          sync.Mutex
	closed      bool
	buffer      int
	subscribers map[string]map[*memorySubscription]struct{}
}

// NewMemoryBus creates an in-process bus. buffer <= 0 uses the default.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &MemoryBus{
		buffer:      buffer,
		subscribers: make(map[string]map[*memorySubscription]struct{}),
	}
}

// Publish delivers update to every current subscriber of its session.
func (b *MemoryBus) Publish(ctx context.Context, update Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID := strings.TrimSpace(update.SessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subscribers[sessionID] {
		sub.deliver(update)
	}
	return nil
}

// Subscribe registers a subscriber for sessionID. The subscription also ends
// when ctx is cancelled.
func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{
		bus:       b,
		sessionID: sessionID,
		ch:        make(chan Update, b.buffer),
		done:      make(chan struct{}),
	}
	subs := b.subscribers[sessionID]
	if subs == nil {
		subs = make(map[*memorySubscription]struct{})
		b.subscribers[sessionID] = subs
	}
	subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// SubscriberCount reports how many subscribers sessionID has.
func (b *MemoryBus) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[sessionID])
}

// Close ends every subscription and rejects further use.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sessionID, subs := range b.subscribers {
		for sub := range subs {
			sub.closeLocked()
		}
		delete(b.subscribers, sessionID)
	}
	return nil
}

type memorySubscription struct {
	bus       *MemoryBus
	sessionID string
	ch        chan Update
	done      chan struct{}
	closed    bool
}

func (s *memorySubscription) Updates() <-chan Update {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return nil
	}
	if subs := s.bus.subscribers[s.sessionID]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.bus.subscribers, s.sessionID)
		}
	}
	s.closeLocked()
	return nil
}

// closeLocked requires bus.mu.
func (s *memorySubscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// deliver requires bus.mu.
func (s *memorySubscription) deliver(update Update) {
	if s.closed {
		return
	}
	if dropped, ok := enqueue(s.ch, update); ok {
		log.Printf("pubsub: session %s subscriber lagging, dropped %s update", s.sessionID, dropped.Kind)
	}
}
