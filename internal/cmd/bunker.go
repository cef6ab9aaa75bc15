package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var bunkerCmd = &cobra.Command{
	Use:   "bunker",
	Short: "Manage the NIP-46 remote-signer listener",
	RunE:  requireSubcommand,
}

var bunkerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start listening for inbound NIP-46 requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		if !s.facade.LoggedIn() {
			return notLoggedInErr(fmt.Errorf("not logged in"))
		}
		if err := s.facade.StartBunker(ctx); err != nil {
			return invalidArgErr(err)
		}
		fmt.Println("bunker started")
		return nil
	},
}

var bunkerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the bunker listener",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		if !s.facade.LoggedIn() {
			return notLoggedInErr(fmt.Errorf("not logged in"))
		}
		if err := s.facade.StopBunker(); err != nil {
			return invalidArgErr(err)
		}
		fmt.Println("bunker stopped")
		return nil
	},
}

var bunkerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bunker listener and pending-request state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		fmt.Printf("running: %v\n", s.facade.BunkerRunning())
		pending, err := s.facade.PendingBunkerRequests()
		if err != nil {
			fmt.Println("pending: (not logged in)")
			return nil
		}
		fmt.Printf("pending: %d\n", len(pending))
		for _, r := range pending {
			fmt.Printf("  %s\tfrom=%s\tkind=%d\tstate=%s\n", r.ID, r.RequesterPubkey, r.EventKind, r.State)
		}
		return nil
	},
}

var bunkerRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List standing auto-approve rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		rules, err := s.facade.Rules()
		if err != nil {
			return notLoggedInErr(err)
		}
		for _, r := range rules {
			kind := "any"
			if r.EventKind != nil {
				kind = strconv.Itoa(*r.EventKind)
			}
			fmt.Printf("%s\trequester=%s\tkind=%s\n", r.ID, r.RequesterPubkey, kind)
		}
		return nil
	},
}

var bunkerRulesRemoveCmd = &cobra.Command{
	Use:   "remove <requester-pubkey> <kind>",
	Short: "Remove a standing auto-approve rule (kind -1 removes an any-kind rule)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		kind, err := strconv.Atoi(args[1])
		if err != nil {
			return invalidArgErr(fmt.Errorf("invalid kind %q: %w", args[1], err))
		}
		if err := s.facade.RemoveRule(args[0], kind); err != nil {
			return notLoggedInErr(err)
		}
		return nil
	},
}

var bunkerAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the bunker's past approval decisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		entries, err := s.facade.AuditLog()
		if err != nil {
			return notLoggedInErr(err)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\trequester=%s\tkind=%d\tdecision=%s\trule=%s\n", e.ID, e.Time.Format("2006-01-02T15:04:05Z"), e.RequesterPubkey, e.EventKind, e.Decision, e.RuleID)
		}
		return nil
	},
}

func init() {
	bunkerRulesCmd.AddCommand(bunkerRulesRemoveCmd)
	bunkerCmd.AddCommand(bunkerStartCmd, bunkerStopCmd, bunkerStatusCmd, bunkerRulesCmd, bunkerAuditCmd)
	rootCmd.AddCommand(bunkerCmd)
}
