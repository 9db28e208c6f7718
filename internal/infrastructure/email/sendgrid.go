package email

import (
	"context"
	"fmt"

	domain "accounts/backend/internal/domain/account"
	"accounts/backend/internal/logger"
	usecase "accounts/backend/internal/usecase/account"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGridNotifier delivers mail through the SendGrid v3 API.
type SendGridNotifier struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

var _ usecase.Notifier = (*SendGridNotifier)(nil)

// NewSendGridNotifier constructs a notifier for the public SendGrid API.
func NewSendGridNotifier(apiKey, from, fromName string) *SendGridNotifier {
	return newSendGridNotifier(sendgrid.NewSendClient(apiKey), from, fromName)
}

// newSendGridNotifierWithHost points the client at another API host, used by tests.
func newSendGridNotifierWithHost(apiKey, host, from, fromName string) *SendGridNotifier {
	request := sendgrid.GetRequest(apiKey, sendGridEndpoint, host)
	request.Method = "POST"
	return newSendGridNotifier(&sendgrid.Client{Request: request}, from, fromName)
}

func newSendGridNotifier(client *sendgrid.Client, from, fromName string) *SendGridNotifier {
	return &SendGridNotifier{client: client, from: from, fromName: fromName}
}

// Send posts msg to SendGrid. Any non-2xx response is an error.
func (n *SendGridNotifier) Send(ctx context.Context, msg domain.Message) error {
	message := mail.NewSingleEmail(
		mail.NewEmail(n.fromName, n.from),
		msg.Subject,
		mail.NewEmail("", msg.To),
		msg.TextBody,
		msg.HTMLBody,
	)

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		logger.Log.ErrorContext(ctx, "sendgrid rejected message", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid responded with status %d", response.StatusCode)
	}
	return nil
}
