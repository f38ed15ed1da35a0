package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/platform/errors/i18n"
	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

const (
	frameAck          = "ack"
	frameError        = "error"
	frameState        = "session.state"
	frameParticipants = "session.participants"
	frameRemoved      = "session.removed"
	frameEnded        = "session.ended"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string            `json:"code"`
	Kind      string            `json:"kind"`
	Domain    string            `json:"domain"`
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
}

type ackEnvelope struct {
	Result ackResult `json:"result"`
}

type ackResult struct {
	Status      string       `json:"status"`
	Code        string       `json:"code,omitempty"`
	IsFollowing *bool        `json:"is_following,omitempty"`
	Display     *displayView `json:"display,omitempty"`
}

type statePayload struct {
	Session sessionView `json:"session"`
	Display displayView `json:"display"`
	Applied bool        `json:"applied"`
}

type participantsPayload struct {
	SessionID    string            `json:"session_id"`
	Participants []participantView `json:"participants"`
}

type removedPayload struct {
	SessionID string `json:"session_id"`
}

type sessionView struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	LeaderID       string  `json:"leader_id"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	HasPassword    bool    `json:"has_password"`
	ScheduledStart *string `json:"scheduled_start,omitempty"`
	ScheduledEnd   *string `json:"scheduled_end,omitempty"`
	CurrentHymnID  string  `json:"current_hymn_id,omitempty"`
	CurrentVerse   int     `json:"current_verse"`
	IsPlaying      bool    `json:"is_playing"`
	IsActive       bool    `json:"is_active"`
	Revision       int64   `json:"revision"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type participantView struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id,omitempty"`
	Role              string `json:"role"`
	DeviceName        string `json:"device_name,omitempty"`
	DeviceType        string `json:"device_type,omitempty"`
	IsCoLeader        bool   `json:"is_co_leader"`
	IsFollowingLeader bool   `json:"is_following_leader"`
	ConnectionStatus  string `json:"connection_status"`
	JoinedAt          string `json:"joined_at"`
	LastSeen          string `json:"last_seen"`
}

type displayView struct {
	HymnID    string `json:"hymn_id,omitempty"`
	Verse     int    `json:"verse"`
	IsPlaying bool   `json:"is_playing"`
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := formatTime(*value)
	return &formatted
}

func newSessionView(s domain.Session) sessionView {
	return sessionView{
		ID:             s.ID,
		Code:           s.Code,
		LeaderID:       s.LeaderID,
		Title:          s.Title,
		Description:    s.Description,
		HasPassword:    s.HasPassword(),
		ScheduledStart: formatTimePtr(s.ScheduledStart),
		ScheduledEnd:   formatTimePtr(s.ScheduledEnd),
		CurrentHymnID:  s.CurrentHymnID,
		CurrentVerse:   s.CurrentVerse,
		IsPlaying:      s.IsPlaying,
		IsActive:       s.IsActive,
		Revision:       s.Revision,
		CreatedAt:      formatTime(s.CreatedAt),
		UpdatedAt:      formatTime(s.UpdatedAt),
	}
}

func newParticipantViews(s domain.Session, participants []domain.Participant) []participantView {
	views := make([]participantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, participantView{
			ID:                p.ID,
			UserID:            p.UserID,
			Role:              domain.RoleOf(s, p).String(),
			DeviceName:        p.DeviceName,
			DeviceType:        p.DeviceType,
			IsCoLeader:        p.IsCoLeader,
			IsFollowingLeader: p.IsFollowingLeader,
			ConnectionStatus:  string(p.ConnectionStatus),
			JoinedAt:          formatTime(p.JoinedAt),
			LastSeen:          formatTime(p.LastSeen),
		})
	}
	return views
}

func newDisplayView(state domain.PlaybackState) displayView {
	return displayView{HymnID: state.HymnID, Verse: state.Verse, IsPlaying: state.Playing}
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

func (p *wsPeer) write(frameType, requestID string, payload any) error {
	return p.writeFrame(wsFrame{Type: frameType, RequestID: requestID, Payload: mustJSON(payload)})
}

func (p *wsPeer) ack(requestID string, result ackResult) error {
	if result.Status == "" {
		result.Status = "ok"
	}
	return p.write(frameAck, requestID, ackEnvelope{Result: result})
}

// writeError sends err as an error frame with a message localized for
// locale. Errors without a domain code are reported as internal. The frame
// mirrors the gRPC status details the error would carry on an RPC.
func (p *wsPeer) writeError(requestID, locale string, err error) error {
	kind := apperrors.KindOf(err)
	appErr, ok := apperrors.As(err)
	if !ok {
		log.Printf("worship: websocket request %q failed: %v", requestID, err)
		appErr = apperrors.Wrap(apperrors.CodeUnknown, "internal error", err)
	} else if kind == apperrors.KindTransient {
		log.Printf("worship: websocket request %q hit %s error %s: %v", requestID, kind, appErr.Code, err)
	}
	message := i18n.GetCatalog(locale).Format(string(appErr.Code), appErr.Metadata)
	st := status.Convert(appErr.ToGRPCStatus(locale, message))

	payload := wsError{
		Code:      string(appErr.Code),
		Kind:      kind.String(),
		Status:    st.Code().String(),
		Message:   message,
		Retryable: appErr.Code.Retryable(),
	}
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			payload.Domain = d.GetDomain()
			payload.Metadata = d.GetMetadata()
		case *errdetails.LocalizedMessage:
			payload.Message = d.GetMessage()
		}
	}
	return p.write(frameError, requestID, wsErrorEnvelope{Error: payload})
}

func (p *wsPeer) writeInvalid(requestID, locale, message string) error {
	return p.writeError(requestID, locale, apperrors.New(apperrors.CodeFrameInvalid, message))
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("worship: marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
