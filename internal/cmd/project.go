package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createProjectDesc   string
	createProjectAgents []string
	createProjectMCP    []string
)

var saveProjectCmd = &cobra.Command{
	Use:   "save-project <name>",
	Short: "Publish a new or updated project definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runSaveProject,
}

func runSaveProject(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return daemonUnreachableErr(err)
	}
	defer s.close()

	if !s.facade.LoggedIn() {
		return notLoggedInErr(fmt.Errorf("not logged in"))
	}

	coord, err := s.facade.CreateProject(ctx, args[0], createProjectDesc, createProjectAgents, createProjectMCP)
	if err != nil {
		return publishRejectedErr(err)
	}
	fmt.Println(coord)
	return nil
}

var bootProjectCmd = &cobra.Command{
	Use:   "boot-project <d-tag>",
	Short: "Print the current status of a project (online agents, assignments)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBootProject,
}

func runBootProject(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return daemonUnreachableErr(err)
	}
	defer s.close()

	status, ok := s.proj.ProjectStatusFor(args[0])
	if !ok {
		return invalidArgErr(fmt.Errorf("no status known for project %q", args[0]))
	}
	fmt.Printf("project: %s\n", args[0])
	fmt.Printf("online agents: %v\n", status.OnlineAgents)
	fmt.Printf("assignments: %v\n", status.Assignments)
	return nil
}

func init() {
	saveProjectCmd.Flags().StringVar(&createProjectDesc, "description", "", "Project description")
	saveProjectCmd.Flags().StringSliceVar(&createProjectAgents, "agent", nil, "Agent definition id (repeatable)")
	saveProjectCmd.Flags().StringSliceVar(&createProjectMCP, "mcp-tool", nil, "MCP tool id (repeatable)")

	rootCmd.AddCommand(saveProjectCmd)
	rootCmd.AddCommand(bootProjectCmd)
}
