package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/KrxkGit/zdtun/internal/config"
)

type fakeForwarder struct {
	forwarded [][]byte
}

func (f *fakeForwarder) EasyForward(buf []byte, now int64) error {
	f.forwarded = append(f.forwarded, append([]byte(nil), buf...))
	return nil
}

func writeTestPcap(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create pcap: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeRaw); err != nil {
		t.Fatalf("write pcap header: %v", err)
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    []byte{10, 0, 0, 1},
		DstIP:    []byte{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	_ = udp.SetNetworkLayerForChecksum(ip)
	payload := gopacket.Payload([]byte("hello"))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, payload); err != nil {
		t.Fatalf("serialize packet: %v", err)
	}

	raw := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(1000, 0),
		CaptureLength: len(raw),
		Length:        len(raw),
	}
	if err := w.WritePacket(ci, raw); err != nil {
		t.Fatalf("write packet: %v", err)
	}
}

func TestPlayerRunForwardsIPv4Packets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.pcap")
	writeTestPcap(t, path)

	p := NewPlayer(&config.ReplayConfig{PcapPath: path, Speed: 0})
	fwd := &fakeForwarder{}

	stats, err := p.Run(context.Background(), fwd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PacketsRead != 1 {
		t.Fatalf("expected 1 packet read, got %d", stats.PacketsRead)
	}
	if stats.PacketsForwarded != 1 {
		t.Fatalf("expected 1 packet forwarded, got %d", stats.PacketsForwarded)
	}
	if len(fwd.forwarded) != 1 {
		t.Fatalf("expected forwarder to record 1 packet, got %d", len(fwd.forwarded))
	}
	if fwd.forwarded[0][0]>>4 != 4 {
		t.Fatalf("expected forwarded bytes to start with an IPv4 header")
	}
}

func TestPlayerRunMissingFile(t *testing.T) {
	p := NewPlayer(&config.ReplayConfig{PcapPath: "/nonexistent/capture.pcap"})
	if _, err := p.Run(context.Background(), &fakeForwarder{}); err == nil {
		t.Fatalf("expected error opening a missing pcap file")
	}
}

func TestPlayerRunInvokesStatsHook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.pcap")
	writeTestPcap(t, path)

	p := NewPlayer(&config.ReplayConfig{PcapPath: path, Speed: 0})
	var calls int
	p.SetStatsHook(time.Nanosecond, func() { calls++ })

	if _, err := p.Run(context.Background(), &fakeForwarder{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls == 0 {
		t.Fatalf("expected stats hook to be invoked at least once")
	}
}
