package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jackzmc/flashforge-api-server/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "flashforge-api-server",
	Short: "HTTP gateway for FlashForge printers.",
	Long:  `Serves the FlashForge TCP control protocol as an HTTP API, relays printer cameras and notifies when prints finish.`,
	// Running without a subcommand starts the server
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default $CONFIG_PATH or "+config.DefaultPath+")")
}

// loadConfig honours --config, then CONFIG_PATH
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
