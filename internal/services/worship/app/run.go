package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/hymnal.space/internal/platform/timeouts"
	"github.com/louisbranch/hymnal.space/internal/services/worship/activity"
	"github.com/louisbranch/hymnal.space/internal/services/worship/pubsub"
	"github.com/louisbranch/hymnal.space/internal/services/worship/session"
	worshipbbolt "github.com/louisbranch/hymnal.space/internal/services/worship/storage/bbolt"
	worshipsqlite "github.com/louisbranch/hymnal.space/internal/services/worship/storage/sqlite"
)

// Activity backends.
const (
	ActivityBackendSQLite = "sqlite"
	ActivityBackendBolt   = "bbolt"

	activityBackendBoltAlias = "bolt"
)

const busBuffer = 64

// RunConfig holds everything needed to run the worship process.
type RunConfig struct {
	Server            Config
	DBPath            string
	ActivityBackend   string
	ActivityBoltPath  string
	NATSURL           string
	JWTSecret         string
	JWTIssuer         string
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
}

// Run opens storage and transport, serves until ctx ends, then releases
// everything in reverse order.
func Run(ctx context.Context, cfg RunConfig) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	store, err := openSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("worship: close sqlite store: %v", err)
		}
	}()

	sink, closeSink, err := openActivitySink(cfg, store)
	if err != nil {
		return err
	}
	defer closeSink()
	recorder := activity.New(sink, activity.Options{WriteTimeout: timeouts.Publish})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), timeouts.ActivityDrain)
		defer cancel()
		if err := recorder.Close(drainCtx); err != nil {
			log.Printf("worship: drain activity log: %v", err)
		}
	}()

	bus, err := openBus(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Printf("worship: close pub/sub bus: %v", err)
		}
	}()

	var authenticator Authenticator
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		jwtAuth, err := NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return err
		}
		authenticator = jwtAuth
	} else {
		log.Printf("worship: no JWT secret configured, trusting the user_id query parameter")
	}

	service := session.NewService(store, bus, recorder, session.Options{StaleAfter: cfg.StaleAfter})
	server, err := NewServer(cfg.Server, NewHandler(HandlerConfig{
		Backend:           service,
		Bus:               bus,
		Authenticator:     authenticator,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}))
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}

func openSQLiteStore(path string) (*worshipsqlite.Store, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "worship.db")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	store, err := worshipsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open worship sqlite store: %w", err)
	}
	return store, nil
}

// openActivitySink returns the configured activity sink. The sqlite backend
// shares the session store.
func openActivitySink(cfg RunConfig, store *worshipsqlite.Store) (activity.Sink, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ActivityBackend)) {
	case "", ActivityBackendSQLite:
		return store, func() {}, nil
	case ActivityBackendBolt, activityBackendBoltAlias:
		path := cfg.ActivityBoltPath
		if strings.TrimSpace(path) == "" {
			path = filepath.Join("data", "worship-activity.bolt")
		}
		if err := ensureDir(path); err != nil {
			return nil, nil, err
		}
		boltStore, err := worshipbbolt.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open worship activity bolt store: %w", err)
		}
		return boltStore, func() {
			if err := boltStore.Close(); err != nil {
				log.Printf("worship: close activity bolt store: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown activity backend %q", cfg.ActivityBackend)
	}
}

func openBus(natsURL string) (pubsub.Bus, error) {
	natsURL = strings.TrimSpace(natsURL)
	if natsURL == "" {
		return pubsub.NewMemoryBus(busBuffer), nil
	}
	conn, err := pubsub.ConnectNATS(natsURL, "hymnal-worship")
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", natsURL, err)
	}
	return pubsub.NewNATSBus(conn, busBuffer, true), nil
}
