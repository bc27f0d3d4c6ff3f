package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/KrxkGit/zdtun/zdtun"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the last engine stats snapshot published to Redis",
	Long: `stats reads the Stats snapshot a running daemon publishes via
internal/telemetry and renders it as a table. Requires telemetry.enabled
in the config this instance was started with.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Telemetry == nil || !cfg.Telemetry.Enabled {
		return fmt.Errorf("telemetry is disabled in this config; no published stats to read")
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Telemetry.RedisAddr,
		DB:   cfg.Telemetry.RedisDB,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf("%s:%s", cfg.Telemetry.KeyPrefix, cfg.App.Name)
	payload, err := client.Get(ctx, key).Result()
	if err == redis.Nil {
		return fmt.Errorf("no stats published yet under key %q", key)
	}
	if err != nil {
		return fmt.Errorf("reading stats from redis: %w", err)
	}

	var s zdtun.Stats
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return fmt.Errorf("decoding stats snapshot: %w", err)
	}

	pterm.DefaultSection.Println("Engine stats (" + key + ")")
	renderStatsTable(s)
	return nil
}
