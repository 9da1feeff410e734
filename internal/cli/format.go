package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/evcraddock/front-desk/internal/status"
	"github.com/evcraddock/front-desk/internal/visit"
)

// printJSON marshals v as indented JSON and writes it to stdout.
func printJSON(v any) error {
	return jsonEncoder(os.Stdout).Encode(v)
}

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

// printVisitTable prints visits as a formatted table, newest first.
func printVisitTable(out io.Writer, visits []visit.Record) error {
	if len(visits) == 0 {
		_, err := fmt.Fprintln(out, "No visits found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tDATE\tTIME\tVISITOR\tPROFESSION\tEMPLOYEE\tDEPARTMENT\tSTATUS"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "--\t----\t----\t-------\t----------\t--------\t----------\t------"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for _, v := range visits {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.Date, v.Time, truncate(v.VisitorName, 24), truncate(v.Profession, 16),
			truncate(v.EmployeeName, 24), truncate(v.Department, 16), v.Status().Label()); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	_, err := fmt.Fprintf(out, "\nTotal: %d visits\n", len(visits))
	return err
}

// printFieldErrors lists validation messages in field order.
func printFieldErrors(out io.Writer, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s: %s\n", k, fields[k])
	}
}

// noticeLine renders a transition notice for the terminal.
func noticeLine(n status.Notice) string {
	mark := "✓"
	if n.Tone == status.Red {
		mark = "✗"
	}
	return fmt.Sprintf("%s %s: %s", mark, n.Title, n.Message)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
