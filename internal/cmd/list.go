package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listAgentsCmd = &cobra.Command{
	Use:   "list-agents",
	Short: "List known agent definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		for _, a := range s.proj.AgentDefinitions() {
			fmt.Printf("%s\t%s\t%s\n", a.ID, a.Title, a.Role)
		}
		return nil
	},
}

var listSkillsCmd = &cobra.Command{
	Use:   "list-skills",
	Short: "List known skills",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		for _, sk := range s.proj.Skills() {
			fmt.Printf("%s\t%s\n", sk.Coordinate, sk.Title)
		}
		return nil
	},
}

var listNudgesCmd = &cobra.Command{
	Use:   "list-nudges",
	Short: "List known nudges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		for _, n := range s.proj.Nudges() {
			fmt.Printf("%s\t%s\n", n.Coordinate, n.Title)
		}
		return nil
	},
}

var listReportsProjects []string

var listReportsCmd = &cobra.Command{
	Use:   "list-reports",
	Short: "List reports, optionally filtered to a set of visible projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		var visible map[string]struct{}
		if len(listReportsProjects) > 0 {
			visible = make(map[string]struct{}, len(listReportsProjects))
			for _, p := range listReportsProjects {
				visible[p] = struct{}{}
			}
		}

		for _, r := range s.proj.Reports(visible) {
			fmt.Printf("%s\t%s\t%s\n", r.Coordinate, r.ProjectCoord, r.Title)
		}
		return nil
	},
}

func init() {
	listReportsCmd.Flags().StringSliceVar(&listReportsProjects, "project", nil, "Restrict to this project coordinate (repeatable; omit to show all)")

	rootCmd.AddCommand(listAgentsCmd)
	rootCmd.AddCommand(listSkillsCmd)
	rootCmd.AddCommand(listNudgesCmd)
	rootCmd.AddCommand(listReportsCmd)
}
