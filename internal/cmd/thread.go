package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createThreadTitle    string
	createThreadAgent    string
	createThreadNudgeIDs []string
	createThreadSkillIDs []string
)

var createThreadCmd = &cobra.Command{
	Use:   "create-thread <project-coordinate> <content>",
	Short: "Publish a new thread root under a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreateThread,
}

func runCreateThread(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return daemonUnreachableErr(err)
	}
	defer s.close()

	if !s.facade.LoggedIn() {
		return notLoggedInErr(fmt.Errorf("not logged in"))
	}

	project, ok := findProjectByCoordOrDTag(s, args[0])
	if !ok {
		return invalidArgErr(fmt.Errorf("unknown project %q", args[0]))
	}

	id, err := s.facade.SendThread(ctx, project.AuthorPubkey, project.DTag, createThreadTitle, args[1], createThreadAgent, createThreadNudgeIDs, createThreadSkillIDs)
	if err != nil {
		return publishRejectedErr(err)
	}
	if err := s.prefs.SetLastProject(args[0]); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not persist last-used project: %v\n", err)
	}
	fmt.Println(id)
	return nil
}

var sendMessageCmd = &cobra.Command{
	Use:   "send-message <thread-id> <content>",
	Short: "Reply into an existing thread",
	Args:  cobra.ExactArgs(2),
	RunE:  runSendMessage,
}

var (
	sendMessageReplyTo string
	sendMessageAgent   string
)

func runSendMessage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return daemonUnreachableErr(err)
	}
	defer s.close()

	if !s.facade.LoggedIn() {
		return notLoggedInErr(fmt.Errorf("not logged in"))
	}

	id, err := s.facade.SendMessage(ctx, args[0], sendMessageReplyTo, args[1], sendMessageAgent)
	if err != nil {
		return publishRejectedErr(err)
	}
	fmt.Println(id)
	return nil
}

var listThreadsCmd = &cobra.Command{
	Use:   "list-threads <project-coordinate>",
	Short: "List threads for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runListThreads,
}

func runListThreads(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return daemonUnreachableErr(err)
	}
	defer s.close()

	for _, t := range s.proj.ThreadsByProject(args[0]) {
		fmt.Printf("%s\t%s\t%s\n", t.ID, t.Title, t.StatusLabel)
	}
	return nil
}

var archiveThreadCmd = &cobra.Command{
	Use:   "archive-thread <thread-id>",
	Short: "Mark a thread as archived in local preferences",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		if err := s.prefs.ArchiveThread(args[0]); err != nil {
			return invalidArgErr(err)
		}
		return nil
	},
}

var listMessagesCmd = &cobra.Command{
	Use:   "list-messages <thread-id>",
	Short: "List messages in a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runListMessages,
}

func runListMessages(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return daemonUnreachableErr(err)
	}
	defer s.close()

	for _, m := range s.proj.MessagesByThread(args[0]) {
		fmt.Printf("%s\t%s\t%s\n", m.ID, m.AuthorPubkey, m.Content)
	}
	return nil
}

func findProjectByCoordOrDTag(s *session, ref string) (projectRef, bool) {
	for _, p := range s.proj.Projects() {
		if p.Coordinate == ref || p.DTag == ref {
			return projectRef{AuthorPubkey: p.AuthorPubkey, DTag: p.DTag}, true
		}
	}
	return projectRef{}, false
}

// projectRef is the subset of projection.Project the thread commands need.
type projectRef struct {
	AuthorPubkey string
	DTag         string
}

func init() {
	createThreadCmd.Flags().StringVar(&createThreadTitle, "title", "", "Thread title")
	createThreadCmd.Flags().StringVar(&createThreadAgent, "agent", "", "Agent pubkey to address")
	createThreadCmd.Flags().StringSliceVar(&createThreadNudgeIDs, "nudge", nil, "Nudge id (repeatable)")
	createThreadCmd.Flags().StringSliceVar(&createThreadSkillIDs, "skill", nil, "Skill id (repeatable)")

	sendMessageCmd.Flags().StringVar(&sendMessageReplyTo, "reply-to", "", "Event id this message replies to")
	sendMessageCmd.Flags().StringVar(&sendMessageAgent, "agent", "", "Agent pubkey to address")

	rootCmd.AddCommand(createThreadCmd)
	rootCmd.AddCommand(sendMessageCmd)
	rootCmd.AddCommand(archiveThreadCmd)
	rootCmd.AddCommand(listThreadsCmd)
	rootCmd.AddCommand(listMessagesCmd)
}
