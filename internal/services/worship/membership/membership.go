// Package membership holds one device's view of a worship session: the
// mirrored session row, the participant list, its own participant row, and
// the local display. While joined it runs two tasks, a subscription consumer
// and a heartbeat loop, which stop together when the device leaves, is
// removed, or the session ends.
package membership

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"github.com/louisbranch/hymnal.space/internal/services/worship/presence"
	"github.com/louisbranch/hymnal.space/internal/services/worship/pubsub"
	"github.com/louisbranch/hymnal.space/internal/services/worship/session"
)

const defaultEventBuffer = 64

// Backend is the session service as seen by one device.
type Backend interface {
	CreateSession(ctx context.Context, input domain.CreateSessionInput) (domain.Session, domain.Participant, error)
	JoinSession(ctx context.Context, input session.JoinSessionInput) (domain.Session, domain.Participant, error)
	LeaveSession(ctx context.Context, participantID string) error
	UpdateSessionSettings(ctx context.Context, actorID string, patch domain.SettingsPatch) (domain.Session, error)
	EndSession(ctx context.Context, actorID string) (domain.Session, error)
	BroadcastHymnChange(ctx context.Context, actorID, hymnID string) (domain.Session, error)
	BroadcastVerseChange(ctx context.Context, actorID string, verse int) (domain.Session, error)
	BroadcastPlayState(ctx context.Context, actorID string, playing bool) (domain.Session, error)
	PromoteToCoLeader(ctx context.Context, actorID, targetID string) (domain.Participant, error)
	RemoveParticipant(ctx context.Context, actorID, targetID string) error
	ToggleFollowLeader(ctx context.Context, actorID string) (bool, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	Heartbeat(ctx context.Context, participantID string) error
}

// Subscriber opens per-session update streams.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (pubsub.Subscription, error)
}

var _ Backend = (*session.Service)(nil)

// Config identifies the device.
type Config struct {
	// UserID is empty for guests.
	UserID            string
	Device            domain.Device
	HeartbeatInterval time.Duration
	// EventBuffer bounds undelivered events; the oldest is dropped when full.
	EventBuffer int
	// ResubscribeBackOff overrides the retry policy after a lost subscription.
	ResubscribeBackOff func() backoff.BackOff
}

// EventKind names what changed.
type EventKind string

const (
	EventState        EventKind = "state"
	EventParticipants EventKind = "participants"
	EventRemoved      EventKind = "removed"
	EventEnded        EventKind = "ended"
)

// Event reports a change to the membership.
type Event struct {
	Kind         EventKind
	Session      domain.Session
	Participants []domain.Participant
	Display      domain.PlaybackState
	// Applied is set on state events that moved the display.
	Applied bool
}

// Membership is safe for concurrent use.
type Membership struct {
	backend Backend
	bus     Subscriber
	cfg     Config

	// lifecycle serializes create, join, leave, end, and close.
	lifecycle sync.Mutex

	mu           sync.Mutex
	joined       bool
	session      domain.Session
	self         domain.Participant
	participants []domain.Participant
	display      domain.PlaybackState
	tasks        *tasks

	eventsMu     sync.Mutex
	events       chan Event
	eventsClosed bool
}

type tasks struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an idle membership.
func New(backend Backend, bus Subscriber, cfg Config) *Membership {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = presence.DefaultInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.ResubscribeBackOff == nil {
		cfg.ResubscribeBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return &Membership{
		backend: backend,
		bus:     bus,
		cfg:     cfg,
		events:  make(chan Event, cfg.EventBuffer),
	}
}

// Events delivers changes in the order they were observed. The channel is
// closed by Close.
func (m *Membership) Events() <-chan Event {
	return m.events
}

// Joined reports whether the membership currently holds a session.
func (m *Membership) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}

// Session returns the mirrored session row.
func (m *Membership) Session() (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.joined {
		return domain.Session{}, errNotJoined()
	}
	return m.session, nil
}

// Self returns the device's own participant row.
func (m *Membership) Self() (domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.joined {
		return domain.Participant{}, errNotJoined()
	}
	return m.self, nil
}

// Role returns the device's role in the session.
func (m *Membership) Role() (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.joined {
		return domain.RoleParticipant, errNotJoined()
	}
	return domain.RoleOf(m.session, m.self), nil
}

// Participants returns the last known participant list.
func (m *Membership) Participants() ([]domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.joined {
		return nil, errNotJoined()
	}
	return append([]domain.Participant(nil), m.participants...), nil
}

// Display returns what the device is showing.
func (m *Membership) Display() (domain.PlaybackState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.joined {
		return domain.PlaybackState{}, errNotJoined()
	}
	return m.display, nil
}

func errNotJoined() error {
	return apperrors.New(apperrors.CodeMembershipNotJoined, "not in a session")
}

// start records the joined state and launches the session tasks. The
// subscription is opened before returning so updates committed after the
// join are not missed.
func (m *Membership) start(joined domain.Session, self domain.Participant) {
	runCtx, cancel := context.WithCancel(context.Background())
	t := &tasks{cancel: cancel}

	var sub pubsub.Subscription
	if m.bus != nil {
		var err error
		sub, err = m.bus.Subscribe(runCtx, joined.ID)
		if err != nil {
			log.Printf("membership: subscribe to session %s: %v", joined.ID, err)
		}
	}

	m.mu.Lock()
	m.joined = true
	m.session = joined
	m.self = self
	m.participants = []domain.Participant{self}
	m.display = joined.Playback()
	m.tasks = t
	m.mu.Unlock()

	if m.bus != nil {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			m.consume(runCtx, t, joined.ID, sub)
		}()
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		presence.Run(runCtx, m.cfg.HeartbeatInterval, func(ctx context.Context) error {
			return m.beat(ctx, t)
		})
	}()
}

// stop cancels the current tasks and waits for them, including tasks that
// already ended themselves after a removal or session end.
func (m *Membership) stop() {
	m.mu.Lock()
	t := m.tasks
	m.tasks = nil
	m.mu.Unlock()
	if t == nil {
		return
	}
	t.cancel()
	t.wg.Wait()
}

// detach clears the joined state from inside a task. It cancels but cannot
// wait; the next stop waits.
func (m *Membership) detach(t *tasks) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks != t || !m.joined {
		return false
	}
	m.joined = false
	t.cancel()
	return true
}

func (m *Membership) current(t *tasks) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks == t && m.joined
}

func (m *Membership) consume(ctx context.Context, t *tasks, sessionID string, sub pubsub.Subscription) {
	defer func() {
		if sub != nil {
			_ = sub.Close()
		}
	}()
	for {
		if sub == nil {
			var err error
			sub, err = m.resubscribe(ctx, sessionID)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("membership: give up on session %s updates: %v", sessionID, err)
				}
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case update, ok := <-sub.Updates():
			if !ok {
				sub = nil
				if ctx.Err() != nil {
					return
				}
				continue
			}
			m.handle(ctx, t, update)
		}
	}
}

func (m *Membership) resubscribe(ctx context.Context, sessionID string) (pubsub.Subscription, error) {
	return backoff.Retry(ctx, func() (pubsub.Subscription, error) {
		sub, err := m.bus.Subscribe(ctx, sessionID)
		if errors.Is(err, pubsub.ErrClosed) {
			return nil, backoff.Permanent(err)
		}
		return sub, err
	},
		backoff.WithBackOff(m.cfg.ResubscribeBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Printf("membership: resubscribe to session %s in %s: %v", sessionID, wait, err)
		}),
	)
}

func (m *Membership) handle(ctx context.Context, t *tasks, update pubsub.Update) {
	switch update.Kind {
	case pubsub.KindSession:
		if update.Session != nil {
			m.applySession(t, *update.Session)
		}
	case pubsub.KindParticipants:
		m.applyParticipants(ctx, t, update.Participants)
	}
}

// applySession mirrors a committed row. Rows at or below the mirrored
// revision are stale and ignored.
func (m *Membership) applySession(t *tasks, row domain.Session) {
	m.mu.Lock()
	if !m.joined || (t != nil && m.tasks != t) || row.ID != m.session.ID || row.Revision <= m.session.Revision {
		m.mu.Unlock()
		return
	}
	m.session = row
	applied := domain.AppliesBroadcast(domain.RoleOf(row, m.self), m.self.IsFollowingLeader)
	if applied {
		m.display = row.Playback()
	}
	event := Event{Kind: EventState, Session: row, Display: m.display, Applied: applied}
	m.mu.Unlock()

	m.emit(event)
	if !row.IsActive {
		m.end(m.tasksOrCurrent(t), Event{Kind: EventEnded, Session: row, Display: event.Display})
	}
}

func (m *Membership) tasksOrCurrent(t *tasks) *tasks {
	if t != nil {
		return t
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks
}

func (m *Membership) end(t *tasks, event Event) {
	if t == nil {
		return
	}
	if m.detach(t) {
		m.emit(event)
	}
}

func (m *Membership) applyParticipants(ctx context.Context, t *tasks, participants []domain.Participant) {
	m.mu.Lock()
	if !m.joined || (t != nil && m.tasks != t) {
		m.mu.Unlock()
		return
	}
	selfID := m.self.ID
	found := false
	for _, p := range participants {
		if p.ID == selfID {
			m.self = p
			found = true
			break
		}
	}
	if found {
		m.participants = append([]domain.Participant(nil), participants...)
	}
	event := Event{Kind: EventParticipants, Session: m.session, Participants: m.participants, Display: m.display}
	m.mu.Unlock()

	if found {
		m.emit(event)
		return
	}
	// A list without this device may predate its join; confirm before
	// treating it as a removal.
	if _, err := m.backend.GetParticipant(ctx, selfID); apperrors.HasCode(err, apperrors.CodeParticipantNotFound) {
		m.removed(m.tasksOrCurrent(t))
	}
}

func (m *Membership) removed(t *tasks) {
	m.mu.Lock()
	event := Event{Kind: EventRemoved, Session: m.session, Display: m.display}
	m.mu.Unlock()
	m.end(t, event)
}

// beat records liveness and refetches the session row and participant list
// so a device converges after missed updates.
func (m *Membership) beat(ctx context.Context, t *tasks) error {
	if !m.current(t) {
		return nil
	}
	m.mu.Lock()
	selfID, sessionID := m.self.ID, m.session.ID
	m.mu.Unlock()

	if err := m.backend.Heartbeat(ctx, selfID); err != nil {
		if apperrors.HasCode(err, apperrors.CodeParticipantNotFound) {
			m.removed(t)
			return nil
		}
		return err
	}
	row, err := m.backend.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	m.applySession(t, row)
	participants, err := m.backend.ListParticipants(ctx, sessionID)
	if err != nil {
		return err
	}
	m.applyParticipants(ctx, t, participants)
	return nil
}

// emit queues event. A full buffer gives up its oldest event of the same
// kind, or its oldest event when none matches.
func (m *Membership) emit(event Event) {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	if m.eventsClosed {
		return
	}
	for {
		select {
		case m.events <- event:
			return
		default:
		}
		var pending []Event
	drain:
		for {
			select {
			case queued := <-m.events:
				pending = append(pending, queued)
			default:
				break drain
			}
		}
		if len(pending) == 0 {
			continue
		}
		victim := 0
		for i, queued := range pending {
			if queued.Kind == event.Kind {
				victim = i
				break
			}
		}
		log.Printf("membership: event reader lagging, dropped %s event", pending[victim].Kind)
		for i, queued := range pending {
			if i != victim {
				m.events <- queued
			}
		}
	}
}
