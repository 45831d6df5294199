package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/taskfeed/taskfeed/internal/ui"
)

var userCmd = &cobra.Command{
	Use:     "user",
	GroupID: "client",
	Short:   "Register and list users",
}

var userAddCmd = &cobra.Command{
	Use:   "add [username]",
	Short: "Register a user",
	Long: `Register a user on the server.

Without a username argument, the username and email are prompted for
when stdin is a terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		var username string
		if len(args) == 1 {
			username = args[0]
		} else {
			var err error
			if username, email, err = promptUser(email); err != nil {
				return err
			}
		}

		u, err := newClient().RegisterUser(cmd.Context(), username, email)
		if err != nil {
			return err
		}
		fmt.Printf("%s Registered %s with id %d\n", ui.Styles.OK.Render("✓"), u.Username, u.ID)
		fmt.Printf("   Use --user %d (or TASKFEED_CLIENT_USER_ID=%d) to act as this user\n", u.ID, u.ID)
		return nil
	},
}

// promptUser asks for a username and email.
func promptUser(email string) (string, string, error) {
	if !ui.IsTerminal(os.Stdin) {
		return "", "", errors.New("a username is required when stdin is not a terminal")
	}

	var username string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&username).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("username is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Email (optional)").
				Value(&email),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		return "", "", err
	}
	return username, email, nil
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := newClient().ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println(ui.Styles.Muted.Render("No users"))
			return nil
		}
		for _, u := range users {
			fmt.Printf("%4d  %-20s %s\n", u.ID, u.Username, ui.Styles.Muted.Render(u.Email))
		}
		return nil
	},
}

func init() {
	userAddCmd.Flags().String("email", "", "Email address")
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}
