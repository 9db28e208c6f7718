package email

import (
	"context"
	"regexp"

	domain "accounts/backend/internal/domain/account"
	"accounts/backend/internal/logger"
	usecase "accounts/backend/internal/usecase/account"
)

// tokenParam matches the token query parameter of account links.
var tokenParam = regexp.MustCompile(`(token=)[^&\s"'<>]+`)

// LogNotifier writes messages to the log instead of sending them. Meant for local development.
type LogNotifier struct{}

var _ usecase.Notifier = LogNotifier{}

// Send logs the envelope at info and the body, with link tokens redacted, at debug.
func (LogNotifier) Send(ctx context.Context, msg domain.Message) error {
	logger.Log.InfoContext(ctx, "email not sent (log provider)",
		"to", msg.To,
		"subject", msg.Subject,
	)
	logger.Log.DebugContext(ctx, "email body (log provider)",
		"to", msg.To,
		"body", redactTokens(msg.TextBody),
	)
	return nil
}

func redactTokens(body string) string {
	return tokenParam.ReplaceAllString(body, "${1}[redacted]")
}
