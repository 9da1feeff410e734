// Package visit provides the visitor log domain model and record submission.
package visit

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/evcraddock/front-desk/internal/docstore"
)

// DefaultCollection is the collection visit records live in.
const DefaultCollection = "visits"

// Store field names that the status transitions write.
const (
	FieldArrived      = "arrived"
	FieldDidNotArrive = "didNotArrive"
	FieldCreatedAt    = "createdAt"
)

// Status is the triage state of a visit.
type Status string

const (
	Pending Status = "pending"
	Arrived Status = "arrived"
	NoShow  Status = "no_show"
)

// Label returns the text used on the dashboard and in exports.
func (s Status) Label() string {
	switch s {
	case Arrived:
		return "Arrived"
	case NoShow:
		return "Did Not Arrive"
	default:
		return "Pending"
	}
}

// Flags returns the stored boolean pair for s.
func (s Status) Flags() (arrived, didNotArrive bool) {
	switch s {
	case Arrived:
		return true, false
	case NoShow:
		return false, true
	default:
		return false, false
	}
}

// Record is one employee/visitor pairing.
type Record struct {
	ID             string    `json:"id" mapstructure:"-"`
	EmployeeNumber string    `json:"employeeNumber" mapstructure:"employeeNumber"`
	EmployeeName   string    `json:"employeeName" mapstructure:"employeeName"`
	Department     string    `json:"department" mapstructure:"department"`
	EmployeeEmail  string    `json:"employeeEmail" mapstructure:"employeeEmail"`
	EmployeePhone  string    `json:"employeePhone" mapstructure:"employeePhone"`
	VisitorName    string    `json:"visitorName" mapstructure:"visitorName"`
	Profession     string    `json:"profession" mapstructure:"profession"`
	VisitorPhone   string    `json:"visitorPhone" mapstructure:"visitorPhone"`
	IDNumber       string    `json:"idNumber" mapstructure:"idNumber"`
	Date           string    `json:"date" mapstructure:"date"` // YYYY-MM-DD
	Time           string    `json:"time" mapstructure:"time"` // HH:MM
	CreatedAt      time.Time `json:"createdAt" mapstructure:"-"`
	Arrived        bool      `json:"arrived" mapstructure:"arrived"`
	DidNotArrive   bool      `json:"didNotArrive" mapstructure:"didNotArrive"`
}

// Status derives the triage state from the stored flags. A record whose
// flags are both set (never written by this program) reads as Arrived.
func (r Record) Status() Status {
	switch {
	case r.Arrived:
		return Arrived
	case r.DidNotArrive:
		return NoShow
	default:
		return Pending
	}
}

// Day parses the record's date. ok is false when the stored value is not a
// canonical YYYY-MM-DD date.
func (r Record) Day() (Day, bool) {
	d, err := ParseDay(r.Date)
	if err != nil {
		return Day{}, false
	}
	return d, true
}

// Decode converts a stored document into a Record. Unknown fields are
// ignored and missing status flags read as false.
func Decode(doc docstore.Document) (Record, error) {
	var r Record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &r,
		TagName: "mapstructure",
	})
	if err != nil {
		return Record{}, fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(doc.Fields); err != nil {
		return Record{}, fmt.Errorf("decoding visit %s: %w", doc.ID, err)
	}
	r.ID = doc.ID
	r.CreatedAt = doc.CreatedAt
	return r, nil
}
