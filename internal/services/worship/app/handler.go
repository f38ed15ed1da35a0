package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/hymnal.space/internal/platform/errors/i18n"
	"github.com/louisbranch/hymnal.space/internal/platform/requestctx"
	"github.com/louisbranch/hymnal.space/internal/platform/timeouts"
	"github.com/louisbranch/hymnal.space/internal/services/worship/membership"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

// HandlerConfig wires the websocket surface to the session service.
type HandlerConfig struct {
	Backend membership.Backend
	Bus     membership.Subscriber
	// Authenticator verifies access tokens. When nil the user_id query
	// parameter is trusted, which is only suitable for local development.
	Authenticator     Authenticator
	HeartbeatInterval time.Duration
}

// NewHandler builds the /up and /ws routes.
func NewHandler(cfg HandlerConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, cfg)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, err := resolveUserID(r, cfg.Authenticator)
		if err != nil {
			log.Printf("worship: websocket unauthorized for host=%q remote=%s: %v", r.Host, r.RemoteAddr, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		ctx := requestctx.WithUserID(r.Context(), userID)
		ctx = requestctx.WithLocale(ctx, i18n.Negotiate(r.Header.Get("Accept-Language")))
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})

	return mux
}

// resolveUserID returns the caller's user id, or "" for a guest.
func resolveUserID(r *http.Request, authenticator Authenticator) (string, error) {
	if authenticator == nil {
		return strings.TrimSpace(r.URL.Query().Get("user_id")), nil
	}
	token := accessTokenFromRequest(r)
	if token == "" {
		return "", nil
	}
	return authenticator.Authenticate(r.Context(), token)
}

func handleWSConn(conn *websocket.Conn, cfg HandlerConfig) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}
	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))
	session := newWSSession(ctx, cfg, peer)
	defer session.close()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = peer.writeInvalid("", session.locale, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			// The decoder cannot resync after a syntax error.
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = peer.writeInvalid(frame.RequestID, session.locale, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = peer.writeError(frame.RequestID, session.locale, errRateLimited)
			return
		}

		session.dispatch(frame)
	}
}

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeouts.Shutdown)
}
