// Package cli is the terminal client: one websocket identity, chat and
// call commands on top of it.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	userID    int64
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "chatter",
	Short: "Terminal client for the Chatter messaging and calling server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "ws://localhost:8080", "server base URL (ws:// or wss://)")
	rootCmd.PersistentFlags().Int64Var(&userID, "user", 0, "numeric user id to connect as")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// requireUser guards the commands that act as a connected identity; register
// and other account-less commands skip it.
func requireUser() error {
	if userID == 0 {
		return errors.New("--user is required (run `chatter register <name>` first)")
	}
	return nil
}

// Execute runs the root command. Ctrl+C cancels the command context so a
// running call hangs up cleanly before exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceUsage = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
