package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/KrxkGit/zdtun/zdtun"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check this process's open file descriptors against the engine's socket ceiling",
	Long: `doctor reports how many file descriptors the current process already
holds open, compares that against the engine's configured socket ceiling,
and warns when there isn't enough headroom left for a full load of
forwarded connections plus the shared ICMP socket.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	proc, err := process.NewProcessWithContext(context.Background(), int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("inspecting current process: %w", err)
	}
	numFDs, err := proc.NumFDsWithContext(context.Background())
	if err != nil {
		pterm.Warning.Printf("could not read open file descriptor count on this platform: %v\n", err)
		numFDs = 0
	}

	ceiling := cfg.Engine.SocketCeiling
	if ceiling <= 0 {
		ceiling = zdtun.CeilingPollBased
	}
	headroom := int64(ceiling) - int64(numFDs)

	pterm.DefaultSection.Println("Environment check")
	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"metric", "value"},
		{"process open fds", fmt.Sprintf("%d", numFDs)},
		{"engine socket ceiling", fmt.Sprintf("%d", ceiling)},
		{"headroom", fmt.Sprintf("%d", headroom)},
	}).Render()

	if headroom <= 0 {
		pterm.Error.Println("no headroom left: the process is already at or above the configured socket ceiling")
		return fmt.Errorf("insufficient file descriptor headroom")
	}
	if headroom < int64(ceiling)/4 {
		pterm.Warning.Printf("headroom is below 25%% of the configured ceiling (%d of %d)\n", headroom, ceiling)
	} else {
		pterm.Success.Println("headroom looks healthy")
	}
	return nil
}
