package pubsub

import (
	"context"
	"strings"
	"testing"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

func TestSubjectFor(t *testing.T) {
	if got := SubjectFor("abc"); got != "hymnal.worship.session.abc" {
		t.Fatalf("SubjectFor = %q", got)
	}
}

func TestEncodeDecodeSessionUpdate(t *testing.T) {
	payload, err := EncodeUpdate(SessionUpdate(domain.Session{ID: "s-1", CurrentHymnID: "h-3", CurrentVerse: 1, Revision: 9}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	update, err := DecodeUpdate(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if update.Kind != KindSession || update.Session.CurrentHymnID != "h-3" || update.Session.Revision != 9 {
		t.Fatalf("update = %+v", update)
	}
}

func TestEncodeSessionUpdateOmitsPasswordDigest(t *testing.T) {
	const digest = "$2a$10$secretdigest"
	payload, err := EncodeUpdate(SessionUpdate(domain.Session{ID: "s-1", Code: "ABC123", PasswordDigest: digest, CurrentHymnID: "42"}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, leaked := range []string{digest, "PasswordDigest", "password_digest"} {
		if strings.Contains(string(payload), leaked) {
			t.Fatalf("payload contains %q: %s", leaked, payload)
		}
	}
	if !strings.Contains(string(payload), `"current_hymn_id":"42"`) {
		t.Fatalf("expected snake_case session fields: %s", payload)
	}

	update, err := DecodeUpdate(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if update.Session.PasswordDigest != "" {
		t.Fatalf("decoded digest = %q", update.Session.PasswordDigest)
	}
	if !update.Session.HasPassword() {
		t.Fatal("expected decoded session to require a password")
	}
}

func TestEncodeDecodeParticipantsUpdate(t *testing.T) {
	payload, err := EncodeUpdate(ParticipantsUpdate("s-1", []domain.Participant{{
		ID:               "p-1",
		SessionID:        "s-1",
		DeviceName:       "Tablet",
		IsCoLeader:       true,
		ConnectionStatus: domain.StatusConnected,
	}}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	update, err := DecodeUpdate(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(update.Participants) != 1 {
		t.Fatalf("participants = %+v", update.Participants)
	}
	got := update.Participants[0]
	if got.ID != "p-1" || !got.IsCoLeader || got.ConnectionStatus != domain.StatusConnected {
		t.Fatalf("participant = %+v", got)
	}
}

func TestEncodeUpdateRejectsMalformed(t *testing.T) {
	tests := []Update{
		{Kind: KindSession, SessionID: "s-1"},
		{Kind: "mystery", SessionID: "s-1"},
		{Kind: KindParticipants},
	}
	for _, update := range tests {
		if _, err := EncodeUpdate(update); err == nil {
			t.Fatalf("EncodeUpdate(%+v) should fail", update)
		}
	}
}

func TestDecodeUpdateRejectsMalformed(t *testing.T) {
	for _, payload := range []string{`not json`, `{"kind":"session","session_id":"s-1"}`, `{"kind":"other"}`} {
		if _, err := DecodeUpdate([]byte(payload)); err == nil {
			t.Fatalf("DecodeUpdate(%s) should fail", payload)
		}
	}
}

func TestNATSBusRequiresConnection(t *testing.T) {
	bus := NewNATSBus(nil, 0, false)
	if err := bus.Publish(context.Background(), ParticipantsUpdate("s-1", nil)); err == nil {
		t.Fatal("expected unconfigured publish error")
	}
	if _, err := bus.Subscribe(context.Background(), "s-1"); err == nil {
		t.Fatal("expected unconfigured subscribe error")
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNATSSubscriptionDeliverFiltersSession(t *testing.T) {
	sub := &natsSubscription{sessionID: "s-1", ch: make(chan Update, 1), done: make(chan struct{})}
	sub.deliver(ParticipantsUpdate("s-2", nil))
	sub.deliver(ParticipantsUpdate("s-1", nil))
	sub.deliver(ParticipantsUpdate("s-1", []domain.Participant{{ID: "p-1"}}))

	got := <-sub.Updates()
	if len(got.Participants) != 1 {
		t.Fatalf("expected newest update to replace pending one, got %+v", got)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sub.deliver(ParticipantsUpdate("s-1", nil))
}

func TestConnectNATSRequiresURL(t *testing.T) {
	if _, err := ConnectNATS("", "worship"); err == nil {
		t.Fatal("expected url error")
	}
}
