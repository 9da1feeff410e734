package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/evcraddock/front-desk/internal/client"
	"github.com/evcraddock/front-desk/internal/visit"
)

func newRecordCmd() *cobra.Command {
	in := visit.NewInput(time.Now())

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Register a visit",
		Long: `Register an employee/visitor pairing. The visit starts as pending.
Date and time default to now.`,
		Example: `  frontdesk record --employee-number E-200 --employee-name "Jordan Lee" \
    --department Engineering --employee-email jordan@example.com \
    --employee-phone "+1 555 010 2000" --visitor-name "Sam Rivera" \
    --profession Consultant --visitor-phone "555 010 3000"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(in.Normalized())
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.EmployeeNumber, "employee-number", "", "host employee number")
	f.StringVar(&in.EmployeeName, "employee-name", "", "host employee name")
	f.StringVar(&in.Department, "department", "", "host department")
	f.StringVar(&in.EmployeeEmail, "employee-email", "", "host email (receives the notification)")
	f.StringVar(&in.EmployeePhone, "employee-phone", "", "host phone")
	f.StringVar(&in.VisitorName, "visitor-name", "", "visitor name")
	f.StringVar(&in.Profession, "profession", "", "visitor profession")
	f.StringVar(&in.VisitorPhone, "visitor-phone", "", "visitor phone")
	f.StringVar(&in.IDNumber, "id-number", "", "visitor identification number (optional)")
	f.StringVar(&in.Date, "date", in.Date, "visit date (YYYY-MM-DD)")
	f.StringVar(&in.Time, "time", in.Time, "visit time (HH:MM)")

	return cmd
}

func runRecord(in visit.Input) error {
	var ve *visit.ValidationError
	if err := in.Validate(); errors.As(err, &ve) {
		fmt.Fprintln(os.Stderr, "The visit is incomplete:")
		printFieldErrors(os.Stderr, ve.Fields)
		return fmt.Errorf("visit not recorded")
	}

	id, err := newAPIClient().CreateVisit(in)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
			fmt.Fprintln(os.Stderr, "The server rejected the visit:")
			printFieldErrors(os.Stderr, apiErr.Fields)
			return fmt.Errorf("visit not recorded")
		}
		return err
	}

	if isJSON() {
		return printJSON(map[string]string{"id": id})
	}
	fmt.Printf("✓ Visit %s recorded for %s on %s at %s.\n", id, in.VisitorName, in.Date, in.Time)
	return nil
}
