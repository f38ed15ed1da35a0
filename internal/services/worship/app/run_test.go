package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/louisbranch/hymnal.space/internal/services/worship/pubsub"
	worshipbbolt "github.com/louisbranch/hymnal.space/internal/services/worship/storage/bbolt"
)

func TestRunStopsWhenContextEnds(t *testing.T) {
	dir := t.TempDir()
	cfg := RunConfig{
		Server:           Config{HTTPAddr: "127.0.0.1:0", HealthAddr: "127.0.0.1:0"},
		DBPath:           filepath.Join(dir, "db", "worship.db"),
		ActivityBackend:  ActivityBackendBolt,
		ActivityBoltPath: filepath.Join(dir, "bolt", "activity.bolt"),
		JWTSecret:        "secret",
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Run(ctx, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, path := range []string{cfg.DBPath, cfg.ActivityBoltPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}
}

func TestRunRejectsUnknownActivityBackend(t *testing.T) {
	cfg := RunConfig{
		Server:          Config{HTTPAddr: "127.0.0.1:0"},
		DBPath:          filepath.Join(t.TempDir(), "worship.db"),
		ActivityBackend: "tape",
	}
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown activity backend")
	}
}

func TestOpenActivitySinkAcceptsBoltNames(t *testing.T) {
	for _, backend := range []string{"bbolt", "bolt", " BBOLT "} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			store, err := openSQLiteStore(filepath.Join(dir, "worship.db"))
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			defer store.Close()

			cfg := RunConfig{
				ActivityBackend:  backend,
				ActivityBoltPath: filepath.Join(dir, "activity.bolt"),
			}
			sink, closeSink, err := openActivitySink(cfg, store)
			if err != nil {
				t.Fatalf("open activity sink: %v", err)
			}
			defer closeSink()
			if _, ok := sink.(*worshipbbolt.Store); !ok {
				t.Fatalf("expected bolt sink, got %T", sink)
			}
			if _, err := os.Stat(cfg.ActivityBoltPath); err != nil {
				t.Fatalf("expected bolt file: %v", err)
			}
		})
	}
}

func TestOpenBusDefaultsToMemory(t *testing.T) {
	bus, err := openBus("  ")
	if err != nil {
		t.Fatalf("open bus: %v", err)
	}
	defer bus.Close()
	if _, ok := bus.(*pubsub.MemoryBus); !ok {
		t.Fatalf("expected memory bus, got %T", bus)
	}
}
