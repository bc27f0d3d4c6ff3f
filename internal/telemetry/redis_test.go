package telemetry

import (
	"testing"
	"time"

	"github.com/KrxkGit/zdtun/internal/config"
	"github.com/KrxkGit/zdtun/zdtun"
)

func TestNewPublisherDisabled(t *testing.T) {
	p, err := NewPublisher(&config.TelemetryConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil publisher when telemetry disabled")
	}
	// Stop must tolerate a nil receiver so callers can unconditionally
	// defer it regardless of whether telemetry is enabled.
	p.Stop()
}

func TestNewPublisherNilConfig(t *testing.T) {
	p, err := NewPublisher(nil, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil publisher for nil config")
	}
}

func TestNilPublisherIntervalAndPublishAreSafe(t *testing.T) {
	var p *Publisher
	if got := p.Interval(); got != 0 {
		t.Fatalf("expected zero interval on nil publisher, got %v", got)
	}
	// Must not panic even though snapshots/client are both unset.
	p.Publish(zdtun.Stats{})
}

func TestPublisherIntervalDefaultsWhenUnset(t *testing.T) {
	p := &Publisher{cfg: &config.TelemetryConfig{}}
	if got := p.Interval(); got != 10*time.Second {
		t.Fatalf("expected 10s default interval, got %v", got)
	}

	p.cfg.PublishInterval = 3 * time.Second
	if got := p.Interval(); got != 3*time.Second {
		t.Fatalf("expected configured interval to take precedence, got %v", got)
	}
}

func TestPublishWithoutStartIsANoOp(t *testing.T) {
	p := &Publisher{cfg: &config.TelemetryConfig{}}
	// snapshots channel is nil until Start runs; Publish must not block or panic.
	p.Publish(zdtun.Stats{NumActiveConnections: 1})
}
