// Package replay drives a zdtun engine from a pcap capture instead of a
// live tun device, for offline testing against recorded traffic.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"

	"github.com/KrxkGit/zdtun/internal/config"
	"github.com/KrxkGit/zdtun/zdtun"
)

// Forwarder is the subset of *zdtun.Engine the player drives.
type Forwarder interface {
	EasyForward(buf []byte, now int64) error
}

// Player replays the IPv4 payloads of a pcap capture into a Forwarder,
// pacing delivery by the capture's own inter-packet timestamps scaled by
// Speed (0 meaning as-fast-as-possible).
type Player struct {
	path  string
	speed float64

	statsInterval time.Duration
	statsHook     func()
}

// NewPlayer builds a Player from cfg. PcapPath must name a readable
// capture file; validation happens on Run, not here.
func NewPlayer(cfg *config.ReplayConfig) *Player {
	return &Player{path: cfg.PcapPath, speed: cfg.Speed}
}

// SetStatsHook arranges for fn to be invoked roughly every interval while
// Run is driving the forwarder, called from the same goroutine as
// EasyForward — the only goroutine allowed to touch engine state. This is
// how a telemetry publisher gets a fresh Stats snapshot without reading
// engine state from its own background goroutine.
func (p *Player) SetStatsHook(interval time.Duration, fn func()) {
	p.statsInterval = interval
	p.statsHook = fn
}

// Stats summarizes a completed (or ctx-canceled) replay run.
type Stats struct {
	PacketsRead      int
	PacketsForwarded int
	PacketsSkipped   int
}

// Run reads every packet from the capture file in order and forwards its
// IPv4 payload to fwd, stopping early if ctx is canceled. Non-IPv4
// packets (e.g. ARP) and forwarding errors are counted as skipped and
// logged, not fatal: a malformed capture shouldn't abort the whole run.
func (p *Player) Run(ctx context.Context, fwd Forwarder) (Stats, error) {
	var stats Stats

	f, err := os.Open(p.path)
	if err != nil {
		return stats, fmt.Errorf("replay: opening pcap file: %w", err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return stats, fmt.Errorf("replay: parsing pcap header: %w", err)
	}

	src := gopacket.NewPacketSource(reader, reader.LinkType())

	var lastCapture time.Time
	var lastStats time.Time
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if p.statsHook != nil && p.statsInterval > 0 {
			if now := time.Now(); lastStats.IsZero() || now.Sub(lastStats) >= p.statsInterval {
				p.statsHook()
				lastStats = now
			}
		}

		pkt, err := src.NextPacket()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("replay: reading packet %d: %w", stats.PacketsRead, err)
		}
		stats.PacketsRead++

		ts := pkt.Metadata().Timestamp
		p.pace(ctx, lastCapture, ts)
		lastCapture = ts

		ipLayer := pkt.Layer(layers.LayerTypeIPv4)
		ipv4, ok := ipLayer.(*layers.IPv4)
		if !ok {
			stats.PacketsSkipped++
			continue
		}
		raw := append(append([]byte(nil), ipv4.Contents...), ipv4.Payload...)

		now := ts.Unix()
		if err := fwd.EasyForward(raw, now); err != nil {
			logrus.WithError(err).WithField("packet", stats.PacketsRead).Debug("replay: forwarding packet")
			stats.PacketsSkipped++
			continue
		}
		stats.PacketsForwarded++
	}
}

// pace sleeps long enough to preserve the capture's original inter-packet
// gap scaled by speed. A zero or negative speed (or the very first
// packet, with no prior timestamp) skips pacing entirely.
func (p *Player) pace(ctx context.Context, last, current time.Time) {
	if p.speed <= 0 || last.IsZero() {
		return
	}
	gap := current.Sub(last)
	if gap <= 0 {
		return
	}
	wait := time.Duration(float64(gap) / p.speed)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

var _ Forwarder = (*zdtun.Engine)(nil)
