package visit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/evcraddock/front-desk/internal/docstore"
	"github.com/evcraddock/front-desk/internal/metrics"
)

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s-]{10,}$`)
)

// Input is a visit as entered at the front desk, before the store assigns
// an id and creation time.
type Input struct {
	EmployeeNumber string `json:"employeeNumber"`
	EmployeeName   string `json:"employeeName"`
	Department     string `json:"department"`
	EmployeeEmail  string `json:"employeeEmail"`
	EmployeePhone  string `json:"employeePhone"`
	VisitorName    string `json:"visitorName"`
	Profession     string `json:"profession"`
	VisitorPhone   string `json:"visitorPhone"`
	IDNumber       string `json:"idNumber"`
	Date           string `json:"date"`
	Time           string `json:"time"`
}

// NewInput returns an empty input with date and time defaulted to now.
func NewInput(now time.Time) Input {
	return Input{
		Date: DayOf(now).String(),
		Time: ClockOf(now).String(),
	}
}

// Normalized returns a copy with surrounding whitespace removed.
func (in Input) Normalized() Input {
	return Input{
		EmployeeNumber: strings.TrimSpace(in.EmployeeNumber),
		EmployeeName:   strings.TrimSpace(in.EmployeeName),
		Department:     strings.TrimSpace(in.Department),
		EmployeeEmail:  strings.TrimSpace(in.EmployeeEmail),
		EmployeePhone:  strings.TrimSpace(in.EmployeePhone),
		VisitorName:    strings.TrimSpace(in.VisitorName),
		Profession:     strings.TrimSpace(in.Profession),
		VisitorPhone:   strings.TrimSpace(in.VisitorPhone),
		IDNumber:       strings.TrimSpace(in.IDNumber),
		Date:           strings.TrimSpace(in.Date),
		Time:           strings.TrimSpace(in.Time),
	}
}

// ValidationError maps field names to user-facing messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "invalid visit: " + strings.Join(parts, "; ")
}

// ValidateEmployee checks the employee section only. The registration form
// runs it before revealing the visitor section.
func (in Input) ValidateEmployee() error {
	fields := make(map[string]string)
	in.checkEmployee(fields)
	return toError(fields)
}

// Validate checks every field of a complete submission.
func (in Input) Validate() error {
	fields := make(map[string]string)
	in.checkEmployee(fields)
	in.checkVisitor(fields)
	return toError(fields)
}

func (in Input) checkEmployee(fields map[string]string) {
	if in.EmployeeNumber == "" {
		fields["employeeNumber"] = "Employee number is required"
	}
	if in.EmployeeName == "" {
		fields["employeeName"] = "Name is required"
	}
	if in.Department == "" {
		fields["department"] = "Department is required"
	}
	if !emailPattern.MatchString(in.EmployeeEmail) {
		fields["employeeEmail"] = "Invalid email"
	}
	if !phonePattern.MatchString(in.EmployeePhone) {
		fields["employeePhone"] = "Invalid phone number"
	}
}

func (in Input) checkVisitor(fields map[string]string) {
	if in.VisitorName == "" {
		fields["visitorName"] = "Visitor name is required"
	}
	if in.Profession == "" {
		fields["profession"] = "Profession is required"
	}
	if in.VisitorPhone == "" {
		fields["visitorPhone"] = "Visitor phone is required"
	}

	switch {
	case in.Date == "":
		fields["date"] = "Date is required"
	default:
		if _, err := ParseDay(in.Date); err != nil {
			fields["date"] = "Date must be YYYY-MM-DD"
		}
	}

	switch {
	case in.Time == "":
		fields["time"] = "Time is required"
	default:
		if _, err := ParseClock(in.Time); err != nil {
			fields["time"] = "Time must be HH:MM"
		}
	}
}

func toError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// storeFields is the document written on creation. Status starts Pending.
func (in Input) storeFields() map[string]any {
	return map[string]any{
		"employeeNumber":  in.EmployeeNumber,
		"employeeName":    in.EmployeeName,
		"department":      in.Department,
		"employeeEmail":   in.EmployeeEmail,
		"employeePhone":   in.EmployeePhone,
		"visitorName":     in.VisitorName,
		"profession":      in.Profession,
		"visitorPhone":    in.VisitorPhone,
		"idNumber":        in.IDNumber,
		"date":            in.Date,
		"time":            in.Time,
		FieldArrived:      false,
		FieldDidNotArrive: false,
		FieldCreatedAt:    docstore.ServerTimestamp,
	}
}

// record builds the Record a successful create stored.
func (in Input) record(id string, createdAt time.Time) Record {
	return Record{
		ID:             id,
		EmployeeNumber: in.EmployeeNumber,
		EmployeeName:   in.EmployeeName,
		Department:     in.Department,
		EmployeeEmail:  in.EmployeeEmail,
		EmployeePhone:  in.EmployeePhone,
		VisitorName:    in.VisitorName,
		Profession:     in.Profession,
		VisitorPhone:   in.VisitorPhone,
		IDNumber:       in.IDNumber,
		Date:           in.Date,
		Time:           in.Time,
		CreatedAt:      createdAt,
	}
}

// Notifier is told about every visit that was stored.
type Notifier interface {
	VisitRegistered(ctx context.Context, r Record) error
}

// Submitter validates and stores new visits.
type Submitter struct {
	store      docstore.Writer
	collection string
	notifier   Notifier
	metrics    *metrics.Metrics
	now        func() time.Time
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithNotifier sends a host notification after each stored visit.
func WithNotifier(n Notifier) SubmitterOption {
	return func(s *Submitter) { s.notifier = n }
}

// WithMetrics records submission outcomes.
func WithMetrics(m *metrics.Metrics) SubmitterOption {
	return func(s *Submitter) { s.metrics = m }
}

// NewSubmitter creates a Submitter writing to collection.
func NewSubmitter(store docstore.Writer, collection string, opts ...SubmitterOption) *Submitter {
	s := &Submitter{store: store, collection: collection, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates in and creates the visit with a single store write.
// A *ValidationError is returned without touching the store. A failed
// notification is logged and does not fail the submission.
func (s *Submitter) Submit(ctx context.Context, in Input) (string, error) {
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		s.metrics.SubmissionRecorded(metrics.OutcomeInvalid)
		return "", err
	}

	id, err := s.store.Create(ctx, s.collection, in.storeFields())
	if err != nil {
		s.metrics.SubmissionRecorded(metrics.OutcomeFailure)
		slog.Error("recording visit", "err", err)
		return "", fmt.Errorf("recording visit: %w", err)
	}
	s.metrics.SubmissionRecorded(metrics.OutcomeSuccess)
	slog.Info("visit recorded", "id", id, "employee", in.EmployeeNumber, "date", in.Date)

	if s.notifier != nil {
		if err := s.notifier.VisitRegistered(ctx, in.record(id, s.now())); err != nil {
			s.metrics.NotificationRecorded(metrics.OutcomeFailure)
			slog.Warn("notifying host employee", "id", id, "err", err)
		} else {
			s.metrics.NotificationRecorded(metrics.OutcomeSuccess)
		}
	}

	return id, nil
}

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
