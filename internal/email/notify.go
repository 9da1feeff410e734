package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/evcraddock/front-desk/internal/visit"
)

// HostNotifier emails the host employee when a visitor is registered for
// them. In dev mode the message is logged instead of sent.
type HostNotifier struct {
	cfg     SMTPConfig
	devMode bool
	baseURL string
	send    func(SMTPConfig, Message) error
}

// NewHostNotifier creates a notifier. baseURL links to the dashboard.
func NewHostNotifier(cfg SMTPConfig, baseURL string, devMode bool) *HostNotifier {
	return &HostNotifier{cfg: cfg, devMode: devMode, baseURL: baseURL, send: Send}
}

// VisitRegistered sends the notification for r. Records without an
// employee email are skipped.
func (n *HostNotifier) VisitRegistered(ctx context.Context, r visit.Record) error {
	if r.EmployeeEmail == "" {
		return nil
	}
	msg := HostMessage(r, n.baseURL)

	if n.devMode || !n.cfg.IsConfigured() {
		slog.InfoContext(ctx, "host notification (not sent)",
			"to", r.EmployeeEmail, "subject", msg.Subject, "dev_mode", n.devMode)
		return nil
	}

	if err := n.send(n.cfg, msg); err != nil {
		return fmt.Errorf("notifying %s: %w", r.EmployeeEmail, err)
	}
	slog.InfoContext(ctx, "host notified", "id", r.ID, "to", r.EmployeeEmail)
	return nil
}

// HostMessage builds the email telling the host about their visitor.
func HostMessage(r visit.Record, baseURL string) Message {
	var buf bytes.Buffer

	name := r.EmployeeName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&buf, "Hi %s,\n\n", name)
	fmt.Fprintf(&buf, "A visitor has been registered for you at the front desk.\n\n")
	fmt.Fprintf(&buf, "Visitor:    %s\n", r.VisitorName)
	if r.Profession != "" {
		fmt.Fprintf(&buf, "Profession: %s\n", r.Profession)
	}
	if r.VisitorPhone != "" {
		fmt.Fprintf(&buf, "Phone:      %s\n", r.VisitorPhone)
	}
	fmt.Fprintf(&buf, "Expected:   %s at %s\n", r.Date, r.Time)
	if baseURL != "" {
		fmt.Fprintf(&buf, "\nFront desk: %s/dashboard\n", baseURL)
	}

	return Message{
		To:      []string{r.EmployeeEmail},
		Subject: fmt.Sprintf("Visitor registered: %s on %s", r.VisitorName, r.Date),
		Body:    buf.String(),
	}
}
