package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/KrxkGit/zdtun/internal/pkg/logger"
	"github.com/KrxkGit/zdtun/internal/replay"
	"github.com/KrxkGit/zdtun/internal/telemetry"
	"github.com/KrxkGit/zdtun/zdtun"
)

var (
	replayPcapPath string
	replaySpeed    float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Drive an engine instance from a pcap capture",
	Long: `replay stands in for the tun device reader loop this module does
not own: it reads a capture file and feeds each IPv4 payload through
Engine.EasyForward, synthesizing replies that are discarded (there is no
real client to deliver them to) but still exercise the full forwarding
path, connection table and purge logic.`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayPcapPath, "pcap", "", "pcap file to replay (overrides config replay.pcap_path)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "playback speed multiplier, 0 = as fast as possible (overrides config)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if replayPcapPath != "" {
		cfg.Replay.PcapPath = replayPcapPath
	}
	if cmd.Flags().Changed("speed") {
		cfg.Replay.Speed = replaySpeed
	}
	if cfg.Replay.PcapPath == "" {
		return fmt.Errorf("no pcap file given: pass --pcap or set replay.pcap_path")
	}

	engine, err := zdtun.NewEngine(zdtun.Callbacks{
		SendClient: func(e *zdtun.Engine, buf []byte, conn *zdtun.Conn) error {
			return nil // no real client during replay; the round trip still exercised the forwarder
		},
	}, zdtun.EngineOptions{
		MaxWindow:     uint16(cfg.Engine.MaxWindow),
		SocketCeiling: cfg.Engine.SocketCeiling,
		FixedISN:      cfg.Engine.FixedISN,
	})
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer engine.Close()

	publisher, err := telemetry.NewPublisher(cfg.Telemetry, cfg.App.Name)
	if err != nil {
		logger.Warnf("telemetry disabled: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	player := replay.NewPlayer(cfg.Replay)

	if publisher != nil {
		publisher.Start(ctx)
		defer publisher.Stop()
		// Stats() walks engine state and must only ever be called from the
		// goroutine driving Run/EasyForward; the hook runs inline in that
		// same loop, so the snapshot handed to Publish is always safe.
		player.SetStatsHook(publisher.Interval(), func() {
			publisher.Publish(engine.Stats())
		})
	}

	sigCtx, stopSig := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSig()

	stats, err := player.Run(sigCtx, engine)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("replay: %w", err)
	}

	pterm.DefaultSection.Println("Replay summary")
	pterm.DefaultTable.WithData(pterm.TableData{
		{"packets read", fmt.Sprintf("%d", stats.PacketsRead)},
		{"packets forwarded", fmt.Sprintf("%d", stats.PacketsForwarded)},
		{"packets skipped", fmt.Sprintf("%d", stats.PacketsSkipped)},
	}).Render()

	engineStats := engine.Stats()
	pterm.DefaultSection.Println("Final engine stats")
	renderStatsTable(engineStats)
	return nil
}

func renderStatsTable(s zdtun.Stats) {
	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"metric", "value"},
		{"active connections", fmt.Sprintf("%d", s.NumActiveConnections)},
		{"open sockets", fmt.Sprintf("%d", s.NumOpenSockets)},
		{"current TCP", fmt.Sprintf("%d", s.CurrentTCP)},
		{"current UDP", fmt.Sprintf("%d", s.CurrentUDP)},
		{"current ICMP", fmt.Sprintf("%d", s.CurrentICMP)},
		{"lifetime TCP", fmt.Sprintf("%d", s.LifetimeTCP)},
		{"lifetime UDP", fmt.Sprintf("%d", s.LifetimeUDP)},
		{"lifetime ICMP", fmt.Sprintf("%d", s.LifetimeICMP)},
	}).Render()
}
