package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("bot exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot with every enabled driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), configFile)
		},
	}

	lookupCmd := &cobra.Command{
		Use:   "lookup <省份>",
		Short: "Print the group listing reply for one province",
		Long: `Query the group directory once and print the reply the bot would send.

The config file is optional here; only modules.bangmap and log_level are read.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := runLookup(cmd.Context(), configFile, strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		},
	}

	rootCmd := &cobra.Command{
		Use:           "bot",
		Short:         "Province lookup bot for BanG Dream! player groups",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runCmd.RunE,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default $"+envConfigFile+" or "+configSearchPaths[0]+")")
	rootCmd.AddCommand(runCmd, lookupCmd)

	return rootCmd
}
