// The goft command runs the goft chat server and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/MattCruikshank/goft/internal/config"
	"github.com/MattCruikshank/goft/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "goft",
	Short: "goft - chat rooms over htmx and WebSockets",
	Long: `goft serves chat rooms to the browser. Pages are rendered on the server,
and messages travel over a WebSocket as HTML fragments that htmx swaps in.

Configuration is read from goft.toml (or --config), a .env file, and
GOFT_* environment variables, in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		logger, err = logging.New(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: goft.toml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	tailCmd.Flags().StringVar(&tailURL, "url", "http://localhost:8080", "Server URL")
	tailCmd.Flags().StringVar(&tailUser, "user", "", "User name")
	tailCmd.Flags().StringVar(&tailPassword, "password", "", "Password (or set GOFT_PASSWORD env)")
	tailCmd.Flags().Int64Var(&tailRoom, "room", 0, "Room ID")
	tailCmd.MarkFlagRequired("user")
	tailCmd.MarkFlagRequired("room")

	seedCmd.Flags().StringVar(&seedUser, "user", "test", "Name of the seeded user")
	seedCmd.Flags().StringVar(&seedPassword, "password", "123", "Password of the seeded user")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
