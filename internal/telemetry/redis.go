// Package telemetry publishes periodic engine statistics snapshots to
// Redis so an external dashboard or a master process can observe a
// running daemon without talking to it directly.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/KrxkGit/zdtun/internal/config"
	"github.com/KrxkGit/zdtun/zdtun"
)

// Publisher writes Stats snapshots to a Redis key under
// Enabled/RedisAddr/KeyPrefix from TelemetryConfig. It never reads engine
// state itself: the engine is not safe for concurrent access, so every
// snapshot must be computed by the caller on the engine's own owning
// goroutine and handed over through Publish. The background goroutine
// Start launches only does the Redis write.
type Publisher struct {
	client   *redis.Client
	cfg      *config.TelemetryConfig
	instance string

	snapshots chan zdtun.Stats
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPublisher dials Redis per cfg. Returns (nil, nil) when telemetry is
// disabled, so callers can unconditionally defer Stop on the result.
func NewPublisher(cfg *config.TelemetryConfig, instance string) (*Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return &Publisher{client: client, cfg: cfg, instance: instance}, nil
}

// Start launches the background goroutine that writes snapshots handed to
// it through Publish to Redis. It does not poll anything and does not
// touch the engine; the caller is responsible for calling Publish at
// whatever cadence Interval reports, from the goroutine that owns the
// engine. Safe to call once; a second call is a no-op.
func (p *Publisher) Start(ctx context.Context) {
	if p == nil || p.done != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.snapshots = make(chan zdtun.Stats, 1)

	go func() {
		defer close(p.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case s := <-p.snapshots:
				p.publish(runCtx, s)
			}
		}
	}()
}

// Interval reports how often the caller should compute a fresh snapshot
// and call Publish, falling back to a default when unconfigured.
func (p *Publisher) Interval() time.Duration {
	if p == nil {
		return 0
	}
	if p.cfg.PublishInterval <= 0 {
		return 10 * time.Second
	}
	return p.cfg.PublishInterval
}

// Publish hands a snapshot, already computed by the caller, to the
// background publish loop. Non-blocking: while an earlier snapshot is
// still queued, the new one is dropped rather than stalling the caller's
// event loop on a slow Redis write.
func (p *Publisher) Publish(s zdtun.Stats) {
	if p == nil || p.snapshots == nil {
		return
	}
	select {
	case p.snapshots <- s:
	default:
	}
}

func (p *Publisher) publish(ctx context.Context, s zdtun.Stats) {
	payload, err := json.Marshal(s)
	if err != nil {
		logrus.WithError(err).Warn("telemetry: marshaling stats snapshot")
		return
	}
	key := fmt.Sprintf("%s:%s", p.cfg.KeyPrefix, p.instance)
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.client.Set(writeCtx, key, payload, 2*p.Interval()).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("telemetry: publishing stats snapshot")
	}
}

// Stop halts the background publish loop and closes the Redis client.
// Safe to call on a nil Publisher (e.g. telemetry disabled) or twice.
func (p *Publisher) Stop() {
	if p == nil {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
	if p.client != nil {
		_ = p.client.Close()
	}
}
