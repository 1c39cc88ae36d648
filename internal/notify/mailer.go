// Package notify sends transactional email over SMTP. Every send is
// best effort from the caller's perspective; the money path never waits
// on a mail server.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cvforge/internal/types"

	"gopkg.in/gomail.v2"
)

// dialer is the gomail surface the mailer uses, extracted for tests.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailerConfig holds SMTP settings.
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer renders and delivers transactional messages.
type Mailer struct {
	dialer dialer
	from   string
	logger *slog.Logger
}

// NewMailer creates a Mailer against a real SMTP dialer.
func NewMailer(cfg MailerConfig, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

// NewMailerWithDialer creates a Mailer with a caller-provided dialer.
func NewMailerWithDialer(d dialer, from string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{dialer: d, from: from, logger: logger}
}

// SendOrderReceipt emails the receipt for a completed order.
func (m *Mailer) SendOrderReceipt(ctx context.Context, email string, order *types.Order) error {
	var body strings.Builder
	fmt.Fprintf(&body, "Thanks for your purchase.\n\n")
	fmt.Fprintf(&body, "Order: %s\n", order.ID)
	fmt.Fprintf(&body, "Package: %s\n", order.Package)
	fmt.Fprintf(&body, "Amount: %s\n", formatAmount(order.AmountCents, order.Currency))
	if order.HasUnlimitedEdits() {
		fmt.Fprintf(&body, "Edits included: unlimited\n")
	} else {
		fmt.Fprintf(&body, "Edits included: %d\n", order.EditsRemaining)
	}

	return m.send(ctx, email,
		fmt.Sprintf("Your CVForge receipt (%s package)", order.Package),
		body.String())
}

// SendUpgradeConfirmation emails the plan upgrade confirmation.
func (m *Mailer) SendUpgradeConfirmation(ctx context.Context, email string, change types.PlanChange) error {
	body := fmt.Sprintf(
		"Your plan has been upgraded from %s to %s.\n\nYour monthly usage counters have been reset.\n",
		change.PreviousPlan, change.NewPlan)

	return m.send(ctx, email,
		fmt.Sprintf("Welcome to the %s plan", change.NewPlan), body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamEmail, "failed to send email", err)
	}

	m.logger.InfoContext(ctx, "email sent", "subject", subject)
	return nil
}

// formatAmount renders a cent amount as a currency string.
func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}
