// Package worship parses worship command flags and composes the service.
package worship

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/hymnal.space/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/hymnal.space/internal/platform/grpc"
	server "github.com/louisbranch/hymnal.space/internal/services/worship/app"
)

// Config holds worship command configuration.
type Config struct {
	HTTPAddr          string        `env:"HYMNAL_SPACE_WORSHIP_HTTP_ADDR"            envDefault:":8095"`
	HealthAddr        string        `env:"HYMNAL_SPACE_WORSHIP_HEALTH_ADDR"          envDefault:":8096"`
	DBPath            string        `env:"HYMNAL_SPACE_WORSHIP_DB_PATH"              envDefault:"data/worship.db"`
	ActivityBackend   string        `env:"HYMNAL_SPACE_WORSHIP_ACTIVITY_BACKEND"     envDefault:"sqlite"`
	ActivityBoltPath  string        `env:"HYMNAL_SPACE_WORSHIP_ACTIVITY_BOLT_PATH"   envDefault:"data/worship-activity.bolt"`
	NATSURL           string        `env:"HYMNAL_SPACE_NATS_URL"`
	JWTSecret         string        `env:"HYMNAL_SPACE_WORSHIP_JWT_SECRET"`
	JWTIssuer         string        `env:"HYMNAL_SPACE_WORSHIP_JWT_ISSUER"`
	HeartbeatInterval time.Duration `env:"HYMNAL_SPACE_WORSHIP_HEARTBEAT_INTERVAL"   envDefault:"30s"`
	StaleAfter        time.Duration `env:"HYMNAL_SPACE_WORSHIP_STALE_AFTER"          envDefault:"90s"`

	// Check probes a running instance's health endpoint instead of serving.
	Check bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "worship HTTP/WebSocket listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "session SQLite database path")
	fs.StringVar(&cfg.ActivityBackend, "activity-backend", cfg.ActivityBackend, "activity log backend (sqlite or bbolt)")
	fs.StringVar(&cfg.ActivityBoltPath, "activity-bolt-path", cfg.ActivityBoltPath, "activity bolt database path")
	fs.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server URL (empty uses the in-process bus)")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "participant heartbeat interval")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "silence after which a participant is disconnected")
	fs.BoolVar(&cfg.Check, "check", false, "probe the health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatInterval <= 0 {
		return Config{}, errors.New("heartbeat interval must be positive")
	}
	if cfg.StaleAfter < cfg.HeartbeatInterval {
		return Config{}, fmt.Errorf("stale-after %s must not be shorter than the heartbeat interval %s", cfg.StaleAfter, cfg.HeartbeatInterval)
	}
	return cfg, nil
}

// Run builds the worship app and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Check {
		return CheckHealth(ctx, cfg)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorship, func(ctx context.Context) error {
		if err := server.Run(ctx, server.RunConfig{
			Server: server.Config{
				HTTPAddr:   cfg.HTTPAddr,
				HealthAddr: cfg.HealthAddr,
			},
			DBPath:            cfg.DBPath,
			ActivityBackend:   cfg.ActivityBackend,
			ActivityBoltPath:  cfg.ActivityBoltPath,
			NATSURL:           cfg.NATSURL,
			JWTSecret:         cfg.JWTSecret,
			JWTIssuer:         cfg.JWTIssuer,
			HeartbeatInterval: cfg.HeartbeatInterval,
			StaleAfter:        cfg.StaleAfter,
		}); err != nil {
			return fmt.Errorf("serve worship: %w", err)
		}
		return nil
	})
}

// CheckHealth probes the health endpoint of a local instance.
func CheckHealth(ctx context.Context, cfg Config) error {
	addr := strings.TrimSpace(cfg.HealthAddr)
	if addr == "" {
		return errors.New("health address is required")
	}
	if strings.HasPrefix(addr, ":") {
		addr = net.JoinHostPort("localhost", strings.TrimPrefix(addr, ":"))
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logf := func(format string, args ...any) {
		log.Printf("health %s", fmt.Sprintf(format, args...))
	}
	return platformgrpc.Probe(probeCtx, addr, server.HealthService, logf)
}
