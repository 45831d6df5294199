package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/taskfeed/taskfeed/internal/client"
	"github.com/taskfeed/taskfeed/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "client",
	Short:   "Create, list, update and delete tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <project-id> <title>",
	Short: "Add a task to a project",
	Long: `Add a task to a project the acting user belongs to.

--due accepts RFC 3339, YYYY-MM-DD or natural language such as
"tomorrow" or "next friday".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireUser()
		if err != nil {
			return err
		}
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}

		in := client.TaskInput{Title: args[1]}
		in.Description, _ = cmd.Flags().GetString("description")
		in.Status, _ = cmd.Flags().GetString("status")
		in.Priority, _ = cmd.Flags().GetString("priority")
		in.AssigneeID, _ = cmd.Flags().GetInt64("assignee")
		if due, _ := cmd.Flags().GetString("due"); due != "" {
			if in.DueDate, err = parseDue(due, time.Now()); err != nil {
				return err
			}
		}

		t, err := c.CreateTask(cmd.Context(), projectID, in)
		if err != nil {
			return err
		}
		fmt.Printf("%s Created task %d in project %d\n", ui.Styles.OK.Render("✓"), t.ID, t.ProjectID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List a project's tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireUser()
		if err != nil {
			return err
		}
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		tasks, err := c.ListTasks(cmd.Context(), projectID, status)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println(ui.Styles.Muted.Render("No tasks"))
			return nil
		}
		for _, t := range tasks {
			due := ""
			if t.DueDate != nil {
				due = ui.Styles.Muted.Render("due " + t.DueDate.Format("2006-01-02"))
			}
			fmt.Printf("%4d  %-5s  %-6s  %-40s %s\n", t.ID, t.Status, t.Priority, t.Title, due)
		}
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Change fields of a task",
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

		var patch client.TaskPatch
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			patch.Title = &v
		}
		if flags.Changed("description") {
			v, _ := flags.GetString("description")
			patch.Description = &v
		}
		if flags.Changed("status") {
			v, _ := flags.GetString("status")
			patch.Status = &v
		}
		if flags.Changed("priority") {
			v, _ := flags.GetString("priority")
			patch.Priority = &v
		}
		if flags.Changed("assignee") {
			v, _ := flags.GetInt64("assignee")
			patch.AssigneeID = &v
		}
		if flags.Changed("due") {
			v, _ := flags.GetString("due")
			if patch.DueDate, err = parseDue(v, time.Now()); err != nil {
				return err
			}
		}

		t, err := c.UpdateTask(cmd.Context(), id, patch)
		if err != nil {
			return err
		}
		fmt.Printf("%s Updated task %d (v%d)\n", ui.Styles.OK.Render("✓"), t.ID, t.Version)
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
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
		if err := c.DeleteTask(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("%s Deleted task %d\n", ui.Styles.OK.Render("✓"), id)
		return nil
	},
}

// dueParser understands English and common relative date phrases.
var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDue parses a due date relative to now.
func parseDue(s string, now time.Time) (*time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return &t, nil
		}
	}

	r, err := dueParser.Parse(s, now)
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: %w", s, err)
	}
	if r == nil {
		return nil, fmt.Errorf("invalid due date %q", s)
	}
	return &r.Time, nil
}

func init() {
	for _, c := range []*cobra.Command{taskAddCmd, taskUpdateCmd} {
		c.Flags().StringP("description", "d", "", "Task description")
		c.Flags().StringP("status", "s", "", "Status: TODO, DOING or DONE")
		c.Flags().String("priority", "", "Priority, e.g. LOW, MEDIUM, HIGH")
		c.Flags().Int64("assignee", 0, "Assignee user id (must be a project member)")
		c.Flags().String("due", "", "Due date")
	}
	taskUpdateCmd.Flags().String("title", "", "Task title")
	taskListCmd.Flags().StringP("status", "s", "", "Only tasks with this status")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskUpdateCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
