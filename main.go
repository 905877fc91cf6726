package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:           "streamrip-bot",
		Short:         "Telegram bot that downloads music with streamrip",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), envFiles)
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load environment variables from these files (default .env)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), envFiles)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Print the loaded configuration with secrets masked and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConfig(cmd, envFiles)
		},
	})

	return rootCmd
}
