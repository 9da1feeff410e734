package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		flags  viewFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export visits to CSV",
		Long: `Download the selected visits as CSV. The file is named after the date
(visits_YYYY-MM-DD.csv) or visits_all.csv. Use --output - for stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(flags, output)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: the suggested name)")

	return cmd
}

func runExport(flags viewFlags, output string) error {
	opts, err := flags.options()
	if err != nil {
		return err
	}

	data, name, err := newAPIClient().Export(opts)
	if err != nil {
		return err
	}

	if output == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if output == "" {
		output = name
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Printf("✓ Exported to %s\n", output)
	return nil
}
