// Package export writes visit records as CSV.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/evcraddock/front-desk/internal/visit"
)

// ErrNoData is returned when there is nothing to export.
var ErrNoData = errors.New("There are no visits to export")

// Header is the fixed column order.
var Header = []string{
	"Employee Number",
	"Employee Name",
	"Department",
	"Employee Email",
	"Employee Phone",
	"Visitor Name",
	"Profession",
	"Visitor Phone",
	"ID Number",
	"Date",
	"Time",
	"Status",
}

// Row returns the CSV cells for r in Header order.
func Row(r visit.Record) []string {
	return []string{
		r.EmployeeNumber,
		r.EmployeeName,
		r.Department,
		r.EmployeeEmail,
		r.EmployeePhone,
		r.VisitorName,
		r.Profession,
		r.VisitorPhone,
		r.IDNumber,
		r.Date,
		r.Time,
		r.Status().Label(),
	}
}

// Write writes a header and one row per record, every field quoted.
// An empty records slice returns ErrNoData and writes nothing.
func Write(w io.Writer, records []visit.Record) error {
	if len(records) == 0 {
		return ErrNoData
	}
	if err := writeLine(w, Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range records {
		if err := writeLine(w, Row(r)); err != nil {
			return fmt.Errorf("writing visit %s: %w", r.ID, err)
		}
	}
	return nil
}

// FileName is the suggested download name for an export of day, or of
// every record when day is nil.
func FileName(day *visit.Day) string {
	if day == nil {
		return "visits_all.csv"
	}
	return fmt.Sprintf("visits_%s.csv", day)
}

// writeLine quotes every cell, unlike encoding/csv which only quotes
// cells that need it.
func writeLine(w io.Writer, cells []string) error {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(c, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
