package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evcraddock/front-desk/internal/status"
)

// newTransitionCmd builds one of the arrive / no-show / reset commands.
func newTransitionCmd(use, short, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := status.ParseKind(kind)
			if err != nil {
				return err
			}
			return runTransition(k, args)
		},
	}
}

// runTransition applies k to each id in turn and stops at the first
// failure. Writes are not retried.
func runTransition(k status.Kind, ids []string) error {
	c := newAPIClient()
	var results []any
	for _, id := range ids {
		res, err := c.Transition(id, k)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		if isJSON() {
			results = append(results, res)
			continue
		}
		fmt.Printf("%s (%s)\n", noticeLine(res.Notice), id)
	}
	if isJSON() {
		return printJSON(results)
	}
	return nil
}
