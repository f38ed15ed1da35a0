package bbolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "activity.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestActivityAppendListOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	for i, action := range []domain.ActionType{
		domain.ActionSessionCreated,
		domain.ActionParticipantJoined,
		domain.ActionHymnChanged,
	} {
		id, err := store.AppendActivity(ctx, domain.ActivityEntry{
			SessionID:  "s-1",
			UserID:     "leader",
			ActionType: action,
			ActionData: map[string]any{"hymn_id": "h-1"},
			Timestamp:  now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append %s: %v", action, err)
		}
		if id != int64(i+1) {
			t.Fatalf("id = %d, want %d", id, i+1)
		}
	}
	if _, err := store.AppendActivity(ctx, domain.ActivityEntry{SessionID: "s-2", ActionType: domain.ActionSessionCreated, Timestamp: now}); err != nil {
		t.Fatalf("append other session: %v", err)
	}

	entries, err := store.ListActivity(ctx, "s-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ActionType != domain.ActionParticipantJoined || entries[1].ActionType != domain.ActionHymnChanged {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].ActionData["hymn_id"] != "h-1" {
		t.Fatalf("action data = %v", entries[1].ActionData)
	}
	if !entries[1].Timestamp.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("timestamp = %v", entries[1].Timestamp)
	}
}

func TestActivityListUnknownSession(t *testing.T) {
	store := openTestStore(t)
	entries, err := store.ListActivity(context.Background(), "missing", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %v, want none", entries)
	}
}

func TestActivityAppendValidation(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.AppendActivity(context.Background(), domain.ActivityEntry{ActionType: domain.ActionHymnChanged}); err == nil {
		t.Fatal("expected session id error")
	}
	if _, err := store.AppendActivity(context.Background(), domain.ActivityEntry{SessionID: "s-1", ActionType: "unknown"}); err == nil {
		t.Fatal("expected action type error")
	}
}

func TestActivityPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.AppendActivity(context.Background(), domain.ActivityEntry{SessionID: "s-1", ActionType: domain.ActionSessionUpdated}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.ListActivity(context.Background(), "s-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].ActionType != domain.ActionSessionUpdated {
		t.Fatalf("entries = %+v", entries)
	}
}
