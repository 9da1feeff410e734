package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evcraddock/front-desk/internal/auth"
	"github.com/evcraddock/front-desk/internal/client"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage staff accounts (admin only)",
	}
	cmd.AddCommand(newUsersAddCmd(), newUsersListCmd(), newUsersRemoveCmd())
	return cmd
}

func newUsersAddCmd() *cobra.Command {
	var u client.NewUser

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Add a staff account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u.Email = strings.TrimSpace(args[0])
			if u.Password == "" {
				pw, err := promptLine("Password: ")
				if err != nil {
					return err
				}
				u.Password = pw
			}
			return runUsersAdd(u)
		},
	}

	cmd.Flags().StringVar(&u.Name, "name", "", "display name")
	cmd.Flags().StringVar(&u.Department, "department", "", "department")
	cmd.Flags().StringVar(&u.Password, "password", "", "initial password (prompted when empty)")

	return cmd
}

func runUsersAdd(u client.NewUser) error {
	if len(u.Password) < auth.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
	}
	created, err := newAPIClient().AddUser(u)
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(created)
	}
	fmt.Printf("✓ Added %s (id %d)\n", created.Email, created.ID)
	return nil
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staff accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersList()
		},
	}
}

func runUsersList() error {
	users, err := newAPIClient().ListUsers()
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(users)
	}
	if len(users) == 0 {
		fmt.Println("No staff accounts.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tDEPARTMENT\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Department, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func newUsersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a staff account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			if err := newAPIClient().DeleteUser(id); err != nil {
				return err
			}
			fmt.Printf("✓ Removed user %d\n", id)
			return nil
		},
	}
}

// promptLine reads one line from stdin after printing prompt.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
