// Package cli defines the cobra command tree for frontdesk.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/front-desk/internal/client"
)

var (
	flagFormat string
	flagConfig string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "frontdesk",
		Short:         "Register and triage front desk visitors",
		Long:          "Front desk visitor registration. Record employee/visitor pairings, follow today's visits live, confirm arrivals and export to CSV from the CLI or the web UI.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "server config file (default: ./frontdesk.yaml if present)")

	root.AddCommand(
		newServeCmd(),
		newRecordCmd(),
		newListCmd(),
		newTransitionCmd("arrive", "Confirm that a visitor arrived", "arrived"),
		newTransitionCmd("no-show", "Mark a visitor as did not arrive", "no_show"),
		newTransitionCmd("reset", "Return a visit to pending", "reset"),
		newExportCmd(),
		newWatchCmd(),
		newUsersCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// newAPIClient creates an HTTP client for the front desk API.
func newAPIClient() *client.Client {
	return client.New(getServerURL(), getAPIKey())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}
