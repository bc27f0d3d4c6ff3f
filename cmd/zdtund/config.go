package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/KrxkGit/zdtun/internal/config"
)

var configInitOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or scaffold zdtund configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.yaml seeded with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if err := cfg.WriteExample(configInitOutput); err != nil {
			return fmt.Errorf("writing example config: %w", err)
		}
		pterm.Success.Printf("wrote default config to %s\n", configInitOutput)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the config this process would load",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		pterm.DefaultSection.Println("Resolved configuration")
		pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"field", "value"},
			{"app.name", cfg.App.Name},
			{"app.environment", cfg.App.Environment},
			{"engine.max_window", fmt.Sprintf("%d", cfg.Engine.MaxWindow)},
			{"engine.socket_ceiling", fmt.Sprintf("%d", cfg.Engine.SocketCeiling)},
			{"engine.fixed_isn", fmt.Sprintf("%v", cfg.Engine.FixedISN)},
			{"log.level", cfg.Log.Level},
			{"log.output", cfg.Log.Output},
			{"telemetry.enabled", fmt.Sprintf("%v", cfg.Telemetry.Enabled)},
			{"replay.pcap_path", cfg.Replay.PcapPath},
		}).Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configInitCmd.Flags().StringVar(&configInitOutput, "output", "./configs/config.yaml", "path to write the scaffolded config file")
}
