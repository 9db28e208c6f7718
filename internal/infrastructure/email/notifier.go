// Package email provides the outbound mail transports.
package email

import (
	"fmt"
	"strings"
	"time"

	usecase "accounts/backend/internal/usecase/account"
)

// Settings selects and configures a transport.
type Settings struct {
	Provider       string
	From           string
	FromName       string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SendGridAPIKey string
	Timeout        time.Duration
}

// New returns the notifier named by s.Provider.
func New(s Settings) (usecase.Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "smtp":
		if s.SMTPHost == "" {
			return nil, fmt.Errorf("smtp provider requires SMTP_HOST")
		}
		return NewSMTPNotifier(s.SMTPHost, s.SMTPPort, s.SMTPUsername, s.SMTPPassword, s.From, s.FromName, s.Timeout), nil
	case "sendgrid":
		if s.SendGridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		if s.From == "" {
			return nil, fmt.Errorf("sendgrid provider requires EMAIL_FROM")
		}
		return NewSendGridNotifier(s.SendGridAPIKey, s.From, s.FromName), nil
	case "log":
		return LogNotifier{}, nil
	case "":
		return nil, fmt.Errorf("email provider is required")
	default:
		return nil, fmt.Errorf("unknown email provider %q", s.Provider)
	}
}
