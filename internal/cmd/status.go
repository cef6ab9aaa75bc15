package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var statusOutput = termenv.NewOutput(os.Stdout)

// colorBool renders a boolean status flag, green for true and red for
// false, degrading to plain text when no color profile is detected
// (e.g. output piped to a file). This is diagnostic coloring, not a
// themed view.
func colorBool(v bool) string {
	label := fmt.Sprintf("%v", v)
	if statusOutput.ColorProfile() == termenv.Ascii {
		return label
	}
	code := "1"
	if v {
		code = "2"
	}
	return statusOutput.String(label).Foreground(statusOutput.Color(code)).String()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show core runtime status (logged in, relay connections, sync interval)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		fmt.Printf("logged in: %s\n", colorBool(s.facade.LoggedIn()))
		fmt.Printf("connected write relays: %d/%d\n", s.pool.ConnectedWriteRelays(), len(s.pool.WriteRelayURLs()))
		fmt.Printf("bunker running: %s\n", colorBool(s.facade.BunkerRunning()))
		fmt.Printf("sync interval: %s\n", s.sync.Interval())
		fmt.Printf("projects: %d\n", len(s.proj.Projects()))
		return nil
	},
}

// shutdownCmd runs session.close for the session this invocation
// opened: stop the negentropy syncer, close the projection and the
// draft store, then close the event store. The ingest pipeline and the
// relay pool are not closed by it, so events still queued in the
// pipeline are not flushed to the store. tenexcore has
// no separate resident daemon process a CLI invocation talks to, so
// "shutdown" here is the same graceful teardown `serve` runs on
// SIGINT/SIGTERM, made directly invocable.
var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Run the graceful shutdown sequence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		if s.facade.BunkerRunning() {
			s.facade.StopBunker()
		}
		s.close()
		fmt.Println("shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(shutdownCmd)
}
