// Package session implements the worship session operations: creating and
// joining sessions, broadcasting playback, managing roles, follow mode, and
// heartbeats. Every mutation authorizes the caller before touching storage,
// commits, publishes the committed snapshot, and records activity.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/platform/id"
	"github.com/louisbranch/hymnal.space/internal/platform/timeouts"
	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"github.com/louisbranch/hymnal.space/internal/services/worship/presence"
	"github.com/louisbranch/hymnal.space/internal/services/worship/pubsub"
	"github.com/louisbranch/hymnal.space/internal/services/worship/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "github.com/louisbranch/hymnal.space/internal/services/worship/session"
	defaultCodeAttempts = 10
)

// Store is the persistence the service needs.
type Store interface {
	storage.SessionStore
	storage.ParticipantStore
}

// Recorder accepts activity entries without blocking.
type Recorder interface {
	Record(sessionID, userID string, action domain.ActionType, data map[string]any)
}

// Options overrides service defaults, mostly for tests.
type Options struct {
	Clock        func() time.Time
	IDGenerator  func() (string, error)
	CodeSource   io.Reader
	HashPassword func(string) (string, error)
	// StaleAfter is the liveness threshold applied to participant lists.
	StaleAfter time.Duration
	// CodeAttempts bounds join code generation retries.
	CodeAttempts int
}

// Service coordinates worship sessions.
type Service struct {
	store        Store
	bus          pubsub.Bus
	activity     Recorder
	clock        func() time.Time
	idGenerator  func() (string, error)
	codeSource   io.Reader
	hashPassword func(string) (string, error)
	staleAfter   time.Duration
	codeAttempts int
	tracer       trace.Tracer
}

// NewService builds a Service. activity may be nil.
func NewService(store Store, bus pubsub.Bus, activity Recorder, opts Options) *Service {
	s := &Service{
		store:        store,
		bus:          bus,
		activity:     activity,
		clock:        opts.Clock,
		idGenerator:  opts.IDGenerator,
		codeSource:   opts.CodeSource,
		hashPassword: opts.HashPassword,
		staleAfter:   opts.StaleAfter,
		codeAttempts: opts.CodeAttempts,
		tracer:       otel.Tracer(tracerName),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.idGenerator == nil {
		s.idGenerator = id.NewID
	}
	if s.hashPassword == nil {
		s.hashPassword = domain.HashPassword
	}
	if s.staleAfter <= 0 {
		s.staleAfter = presence.StaleAfter(presence.DefaultInterval)
	}
	if s.codeAttempts <= 0 {
		s.codeAttempts = defaultCodeAttempts
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "worship.session."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) record(sessionID, userID string, action domain.ActionType, data map[string]any) {
	if s.activity == nil {
		return
	}
	s.activity.Record(sessionID, userID, action, data)
}

// storageError maps storage failures into domain errors. notFound is the
// code used for storage.ErrNotFound.
func storageError(err error, notFound apperrors.Code, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(notFound, message, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeStorageUnavailable, message, err)
}

// actor is the authorized caller of an operation.
type actor struct {
	session     domain.Session
	participant domain.Participant
	role        domain.Role
}

// authorize loads the caller's participant row and session. It does not
// check permissions; callers compare the role.
func (s *Service) authorize(ctx context.Context, participantID string) (actor, error) {
	if participantID == "" {
		return actor{}, apperrors.New(apperrors.CodeParticipantIDEmpty, "participant id is required")
	}
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return actor{}, storageError(err, apperrors.CodeParticipantNotFound, "load participant "+participantID)
	}
	session, err := s.store.GetSession(ctx, participant.SessionID)
	if err != nil {
		return actor{}, storageError(err, apperrors.CodeSessionNotFound, "load session "+participant.SessionID)
	}
	return actor{session: session, participant: participant, role: domain.RoleOf(session, participant)}, nil
}

func requireBroadcast(a actor) error {
	if !a.role.CanBroadcast() {
		return apperrors.New(apperrors.CodeSessionBroadcastForbidden, "only the leader or a co-leader may change the session")
	}
	return requireActive(a.session)
}

func requireLeader(a actor) error {
	if !a.role.CanManage() {
		return apperrors.New(apperrors.CodeSessionLeaderOnly, "only the session leader may do that")
	}
	return requireActive(a.session)
}

func requireActive(session domain.Session) error {
	if !session.IsActive {
		return apperrors.New(apperrors.CodeSessionInactive, "session "+session.ID+" has ended")
	}
	return nil
}

// publishContext detaches publication from the caller's cancellation; the
// commit already happened.
func publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeouts.Publish)
}

func (s *Service) publishSession(ctx context.Context, session domain.Session) {
	if s.bus == nil {
		return
	}
	ctx, cancel := publishContext(ctx)
	defer cancel()
	if err := s.bus.Publish(ctx, pubsub.SessionUpdate(session)); err != nil {
		log.Printf("worship: publish session %s revision %d: %v", session.ID, session.Revision, err)
	}
}

func (s *Service) publishParticipants(ctx context.Context, sessionID string) {
	if s.bus == nil {
		return
	}
	ctx, cancel := publishContext(ctx)
	defer cancel()
	participants, err := s.listParticipants(ctx, sessionID)
	if err != nil {
		log.Printf("worship: list participants for session %s: %v", sessionID, err)
		return
	}
	if err := s.bus.Publish(ctx, pubsub.ParticipantsUpdate(sessionID, participants)); err != nil {
		log.Printf("worship: publish participants for session %s: %v", sessionID, err)
	}
}

func (s *Service) listParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, storageError(err, apperrors.CodeSessionNotFound, "list participants")
	}
	return presence.Effective(participants, s.now(), s.staleAfter), nil
}
