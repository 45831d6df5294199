package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/taskfeed/taskfeed/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "client",
	Short:   "Create, list and share projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project owned by the acting user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireUser()
		if err != nil {
			return err
		}
		description, _ := cmd.Flags().GetString("description")
		p, err := c.CreateProject(cmd.Context(), args[0], description)
		if err != nil {
			return err
		}
		fmt.Printf("%s Created project %d (%s)\n", ui.Styles.OK.Render("✓"), p.ID, p.Name)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects the acting user belongs to",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireUser()
		if err != nil {
			return err
		}
		projects, err := c.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println(ui.Styles.Muted.Render("No projects"))
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%4d  %-30s %s\n", p.ID, p.Name, ui.Styles.Muted.Render(fmt.Sprintf("v%d", p.Version)))
		}
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireUser()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := c.DeleteProject(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("%s Deleted project %d\n", ui.Styles.OK.Render("✓"), id)
		return nil
	},
}

var projectShareCmd = &cobra.Command{
	Use:   "share <id> <username-or-email>",
	Short: "Add a member to a project (owner only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireUser()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		m, err := c.AddMember(cmd.Context(), id, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s Added %s to project %d as %s\n", ui.Styles.OK.Render("✓"), m.Username, id, m.Role)
		return nil
	},
}

var projectUnshareCmd = &cobra.Command{
	Use:   "unshare <id> <user-id>",
	Short: "Remove a member from a project (owner only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireUser()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID(args[1])
		if err != nil {
			return err
		}
		if err := c.RemoveMember(cmd.Context(), id, userID); err != nil {
			return err
		}
		fmt.Printf("%s Removed user %d from project %d\n", ui.Styles.OK.Render("✓"), userID, id)
		return nil
	},
}

// parseID parses a positive numeric id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	projectCreateCmd.Flags().StringP("description", "d", "", "Project description")
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectDeleteCmd, projectShareCmd, projectUnshareCmd)
	rootCmd.AddCommand(projectCmd)
}
