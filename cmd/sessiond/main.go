// Command sessiond serves a demo site on top of a session store and keeps the
// store free of expired sessions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Morditux/sessionstore/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:          "sessiond",
	Short:        "Session store daemon",
	Long:         `sessiond runs a cookie session demo backed by SQLite, PostgreSQL, Redis or Memcached and reaps expired sessions.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")
}

// loadConfig reads the --config flag and builds the logger it describes.
func loadConfig(cmd *cobra.Command) (Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return Config{}, nil, err
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	return cfg, logger, nil
}
