package account

import (
	"testing"

	domain "accounts/backend/internal/domain/account"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmationLink(t *testing.T) {
	m := MailSettings{ClientURL: "https://app.example/", ConfirmEmailPath: "/account/confirm-email"}
	assert.Equal(t,
		"https://app.example/account/confirm-email?email=jane%2Bdev%40x.com&token=abc-_123",
		m.ConfirmationLink("jane+dev@x.com", "abc-_123"))
}

func TestConfirmationMessage_EscapesNamesInHTML(t *testing.T) {
	m := MailSettings{ClientURL: "https://app.example", ConfirmEmailPath: "confirm", ApplicationName: "Accounts"}
	user := &domain.User{Email: "jane@x.com", FirstName: "Jane", LastName: "<Doe>"}

	msg, err := m.confirmationMessage(user, "tok")
	require.NoError(t, err)

	assert.Equal(t, "jane@x.com", msg.To)
	assert.Equal(t, "Confirm your email", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "Hello: Jane &lt;Doe&gt;")
	assert.Contains(t, msg.HTMLBody, `href="https://app.example/confirm?email=jane%40x.com&amp;token=tok"`)
	assert.Contains(t, msg.TextBody, "Hello: Jane <Doe>")
	assert.Contains(t, msg.TextBody, "https://app.example/confirm?email=jane%40x.com&token=tok")
	assert.Contains(t, msg.TextBody, "Accounts")
}

func TestPasswordResetMessage(t *testing.T) {
	m := MailSettings{ClientURL: "https://app.example", ConfirmEmailPath: "/confirm", ResetPasswordPath: "/reset-password", ApplicationName: "Accounts"}
	user := &domain.User{Email: "jane@x.com", FirstName: "Jane", LastName: "Doe"}

	msg, err := m.passwordResetMessage(user, "tok")
	require.NoError(t, err)

	assert.Equal(t, "Reset your password", msg.Subject)
	assert.Contains(t, msg.TextBody, "https://app.example/reset-password?email=jane%40x.com&token=tok")
	assert.NotContains(t, msg.TextBody, "/confirm?")
	assert.Contains(t, msg.HTMLBody, `href="https://app.example/reset-password?email=jane%40x.com&amp;token=tok"`)
}
