package main

import (
	"fmt"
	"os"

	"github.com/sbm367/syft/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "syft",
	Short: "Syft is a thin tensor client mirrored to a peer over WebSocket",
	Long: `Syft keeps a named collection of tensors, runs numeric operations over them
and mirrors every change to a peer. The peer command starts the receiving side.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().String("url", "", "Peer WebSocket URL (overrides config and "+config.EnvURL+")")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging on stderr")
}

// loadConfig resolves the configuration: file (or defaults), environment,
// then explicit flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg = config.Default()
		err = cfg.ApplyEnv()
	}
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("url") {
		cfg.URL, _ = cmd.Flags().GetString("url")
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
	return cfg, cfg.Validate()
}
