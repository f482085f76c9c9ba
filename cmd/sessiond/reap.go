package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Morditux/sessionstore"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Remove expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		reaper := sessionstore.NewReaper(store, sessionstore.ReaperConfig{
			Logger: logger,
		})
		n, err := reaper.ReapNow(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "reaped %d expired sessions\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reapCmd)
}
