package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evcraddock/front-desk/internal/client"
	"github.com/evcraddock/front-desk/internal/view"
	"github.com/evcraddock/front-desk/internal/visit"
)

// viewFlags are the --all and --date flags shared by list, export and watch.
type viewFlags struct {
	all  bool
	date string
}

func (v *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&v.all, "all", false, "show every visit instead of today's")
	cmd.Flags().StringVar(&v.date, "date", "", "only this date (YYYY-MM-DD); implies --all")
}

// filter turns the flags into a view filter. An explicit date only makes
// sense in the All view, so it selects it.
func (v viewFlags) filter() (view.Filter, error) {
	if v.date == "" {
		if v.all {
			return view.Filter{Mode: view.All}, nil
		}
		return view.Filter{Mode: view.Today}, nil
	}
	d, err := visit.ParseDay(v.date)
	if err != nil {
		return view.Filter{}, err
	}
	return view.Filter{Mode: view.All, Date: &d}, nil
}

func (v viewFlags) options() (client.ListOptions, error) {
	f, err := v.filter()
	if err != nil {
		return client.ListOptions{}, err
	}
	opts := client.ListOptions{View: string(f.Mode)}
	if f.Date != nil {
		opts.Date = f.Date.String()
	}
	return opts, nil
}

func newListCmd() *cobra.Command {
	var flags viewFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visits",
		Long:  "List today's visits, every visit (--all) or the visits of one date (--date), newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(flags)
		},
	}
	flags.register(cmd)

	return cmd
}

func runList(flags viewFlags) error {
	opts, err := flags.options()
	if err != nil {
		return err
	}

	list, err := newAPIClient().ListVisits(opts)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(list)
	}
	if list.Error != "" {
		fmt.Fprintf(os.Stderr, "warning: server lost live updates (%s); showing last known visits\n", list.Error)
	}
	return printVisitTable(os.Stdout, list.Visits)
}
