// Package email sends transactional notices through Resend.
package email

import (
	"fmt"
	"time"

	"github.com/PlanPulseHQ/planpulse-go/internal/infrastructure/observability/logging"
	"github.com/resendlabs/resend-go"
)

// Client wraps the Resend API for tenant notices. A client with no API key
// is a no-op: email is optional per tenant.
type Client struct {
	apiKey    string
	fromEmail string
	logger    *logging.ChanneledLogger
}

// NewClient creates an email client for a tenant.
func NewClient(apiKey, fromEmail string, logger *logging.ChanneledLogger) *Client {
	if fromEmail == "" {
		fromEmail = "PlanPulse <notices@planpulse.app>"
	}
	return &Client{apiKey: apiKey, fromEmail: fromEmail, logger: logger}
}

// Enabled reports whether this tenant can send email.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// SendRetentionNotice informs a user that a plan downgrade has scheduled
// part of their history for deletion after the grace deadline.
func (c *Client) SendRetentionNotice(to, firstName, tier string, graceUntil time.Time) error {
	if !c.Enabled() {
		return nil
	}

	client := resend.NewClient(c.apiKey)

	html := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>Your PlanPulse plan changed to <strong>%s</strong>. Activity history
		older than your new plan's retention window is scheduled for deletion
		on <strong>%s</strong>.</p>
		<p>Upgrading before then restores the full history automatically.</p>
		<p>— The PlanPulse team</p>`,
		firstName, tier, graceUntil.UTC().Format("January 2, 2006 15:04 MST"))

	params := &resend.SendEmailRequest{
		From:    c.fromEmail,
		To:      []string{to},
		Subject: "Your activity history retention is changing",
		Html:    html,
	}

	sent, err := client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send retention notice: %w", err)
	}

	c.logger.System().Info("Retention notice sent", "emailId", sent.Id, "tier", tier)
	return nil
}
