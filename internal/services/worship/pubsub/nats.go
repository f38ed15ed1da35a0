package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/hymnal.space/internal/platform/timeouts"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces worship session subjects on the broker.
const SubjectPrefix = "hymnal.worship.session."

// SubjectFor returns the broker subject for a session.
func SubjectFor(sessionID string) string {
	return SubjectPrefix + sessionID
}

// ConnectNATS dials the broker with reconnects that never give up.
func ConnectNATS(url, clientName string) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(timeouts.NATSConnect),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("pubsub: nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("pubsub: nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

// NATSBus is a Bus backed by core NATS subjects, one per session. Delivery
// is at-most-once; the revision guard on subscribers absorbs reordering.
type NATSBus struct {
	conn   *nats.Conn
	buffer int
	owned  bool
}

// NewNATSBus wraps conn. When owned is true Close also closes conn.
func NewNATSBus(conn *nats.Conn, buffer int, owned bool) *NATSBus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &NATSBus{conn: conn, buffer: buffer, owned: owned}
}

// Publish encodes update as JSON on the session subject.
func (b *NATSBus) Publish(ctx context.Context, update Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b == nil || b.conn == nil {
		return fmt.Errorf("nats bus is not configured")
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	payload, err := EncodeUpdate(update)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(SubjectFor(update.SessionID), payload); err != nil {
		return fmt.Errorf("publish session %s: %w", update.SessionID, err)
	}
	return nil
}

// Subscribe listens on the session subject until ctx ends or Close.
func (b *NATSBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("nats bus is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	sub := &natsSubscription{
		sessionID: sessionID,
		ch:        make(chan Update, b.buffer),
		done:      make(chan struct{}),
	}
	natsSub, err := b.conn.Subscribe(SubjectFor(sessionID), func(msg *nats.Msg) {
		update, err := DecodeUpdate(msg.Data)
		if err != nil {
			log.Printf("pubsub: drop malformed update on %s: %v", msg.Subject, err)
			return
		}
		sub.deliver(update)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe session %s: %w", sessionID, err)
	}
	sub.natsSub = natsSub

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Close drains the connection when the bus owns it.
func (b *NATSBus) Close() error {
	if b == nil || b.conn == nil || !b.owned {
		return nil
	}
	if err := b.conn.Drain(); err != nil && !b.conn.IsClosed() {
		b.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

type natsSubscription struct {
	mu        sync.Mutex
	sessionID string
	natsSub   *nats.Subscription
	ch        chan Update
	done      chan struct{}
	closed    bool
}

func (s *natsSubscription) Updates() <-chan Update {
	return s.ch
}

func (s *natsSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.ch)
	natsSub := s.natsSub
	s.mu.Unlock()

	if natsSub != nil {
		if err := natsSub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			return fmt.Errorf("unsubscribe session %s: %w", s.sessionID, err)
		}
	}
	return nil
}

func (s *natsSubscription) deliver(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || update.SessionID != s.sessionID {
		return
	}
	if dropped, ok := enqueue(s.ch, update); ok {
		log.Printf("pubsub: session %s subscriber lagging, dropped %s update", s.sessionID, dropped.Kind)
	}
}

// EncodeUpdate serializes an update for the wire.
func EncodeUpdate(update Update) ([]byte, error) {
	if strings.TrimSpace(update.SessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	switch update.Kind {
	case KindSession:
		if update.Session == nil {
			return nil, fmt.Errorf("session update without session")
		}
	case KindParticipants:
	default:
		return nil, fmt.Errorf("unknown update kind %q", update.Kind)
	}
	payload, err := json.Marshal(newUpdateWire(update))
	if err != nil {
		return nil, fmt.Errorf("marshal update: %w", err)
	}
	return payload, nil
}

// DecodeUpdate parses a wire update.
func DecodeUpdate(payload []byte) (Update, error) {
	var wire updateWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Update{}, fmt.Errorf("unmarshal update: %w", err)
	}
	update := wire.update()
	switch update.Kind {
	case KindSession:
		if update.Session == nil {
			return Update{}, fmt.Errorf("session update without session")
		}
	case KindParticipants:
	default:
		return Update{}, fmt.Errorf("unknown update kind %q", update.Kind)
	}
	return update, nil
}
