// Package cmd implements the CLI surface of spec 6.4: a project-
// management command tree that maps 1:1 onto CommandFacade commands.
// Each invocation is the daemon frontend itself (spec 1's "long-running
// daemon with HTTP/IPC surfaces"): it opens the on-disk event store,
// backfills the projection, best-effort connects to configured relays,
// executes one command, and exits.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes (spec 6.4).
const (
	ExitSuccess              = 0
	ExitInvalidArgument      = 2
	ExitNotLoggedIn          = 3
	ExitRelayPublishRejected = 4
	ExitDaemonUnreachable    = 5
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tenexcore",
	Short: "tenexcore is the CLI frontend for the core Nostr agent-collaboration engine",
	RunE:  requireSubcommand,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to tenexcore.toml (default: $TENEXCORE_BASE_DIR/tenexcore.toml)")
}

// Execute runs the CLI, exiting the process with the command's chosen
// exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := ExitInvalidArgument
		if ce, ok := err.(*cliError); ok {
			code = ce.code
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(code)
	}
}

func requireSubcommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// cliError carries spec 6.4's exit code alongside the error text.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func exitErr(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func notLoggedInErr(err error) error  { return exitErr(ExitNotLoggedIn, err) }
func publishRejectedErr(err error) error { return exitErr(ExitRelayPublishRejected, err) }
func invalidArgErr(err error) error   { return exitErr(ExitInvalidArgument, err) }
func daemonUnreachableErr(err error) error { return exitErr(ExitDaemonUnreachable, err) }
