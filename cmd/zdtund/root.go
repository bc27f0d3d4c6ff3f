package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KrxkGit/zdtun/internal/config"
	"github.com/KrxkGit/zdtun/internal/pkg/logger"
)

var cfgFile string

// rootCmd is the base command when zdtund is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "zdtund",
	Short: "zdtund drives a zdtun packet-to-socket tunneling engine",
	Long: `zdtund hosts a zdtun engine outside of the importable library:
it replays captured traffic through it, reports live statistics published
by a running instance, and checks the host environment against the
engine's open-socket ceiling.

Examples:
  zdtund replay --pcap capture.pcap
  zdtund stats
  zdtund doctor`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCLILogger(cmd)
	},
}

// Execute runs the root command, recovering from any panic so a bug in a
// subcommand reports a clean error instead of a raw Go stack trace.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] zdtund crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initViperConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file or directory (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initViperConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("ZDTUND")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // absence of a config file is fine; defaults+env carry the load
}

// loadConfig resolves the full config tree for a subcommand. It searches
// the --config value (./configs when unset) as a directory for config.yaml;
// unlike initViperConfig, it does not load a --config that names a file.
func loadConfig() (*config.Config, error) {
	dir := cfgFile
	if dir == "" {
		dir = "./configs"
	}
	loader := config.NewConfigLoader(dir, "ZDTUND")
	return loader.LoadConfig()
}

// initCLILogger initializes logging for CLI output, gated by --log-level
// the same way pterm's own debug/info chatter is gated.
func initCLILogger(cmd *cobra.Command) {
	flag := cmd.Flags().Lookup("log-level")
	level := "warn"
	if flag != nil && flag.Changed {
		level = flag.Value.String()
	}

	switch level {
	case "debug":
		pterm.EnableDebugMessages()
	case "info":
		pterm.DisableDebugMessages()
	case "warn", "error", "fatal":
		pterm.DisableDebugMessages()
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	}

	logConfig := &config.LogConfig{
		Level:  level,
		Format: "text",
		Output: "stdout",
		Caller: false,
	}
	if _, err := logger.InitLogger(logConfig); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
	}
}
