package account

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	domain "accounts/backend/internal/domain/account"
)

const (
	confirmationSubject  = "Confirm your email"
	passwordResetSubject = "Reset your password"
)

var confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(
	`<p>Hello: {{.FirstName}} {{.LastName}}</p>` +
		`<p>Please confirm your email address by clicking on the following link.</p>` +
		`<p><a href="{{.Link}}">Click here</a></p>` +
		`<p>Thank you,</p><br>{{.ApplicationName}}`))

var confirmationText = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(
	`Hello: {{.FirstName}} {{.LastName}}

Please confirm your email address by opening the following link:
{{.Link}}

Thank you,
{{.ApplicationName}}
`))

var passwordResetHTML = htmltemplate.Must(htmltemplate.New("reset.html").Parse(
	`<p>Hello: {{.FirstName}} {{.LastName}}</p>` +
		`<p>Please click the following link to reset your password.</p>` +
		`<p><a href="{{.Link}}">Click here</a></p>` +
		`<p>Thank you,</p><br>{{.ApplicationName}}`))

var passwordResetText = texttemplate.Must(texttemplate.New("reset.txt").Parse(
	`Hello: {{.FirstName}} {{.LastName}}

Please open the following link to reset your password:
{{.Link}}

Thank you,
{{.ApplicationName}}
`))

// MailSettings controls the content of outbound account emails.
type MailSettings struct {
	ClientURL        string
	ConfirmEmailPath  string
	ResetPasswordPath string
	ApplicationName   string
}

type mailData struct {
	FirstName       string
	LastName        string
	Link            string
	ApplicationName string
}

// ConfirmationLink builds the client URL the user opens to confirm email.
func (m MailSettings) ConfirmationLink(email, token string) string {
	return m.link(m.ConfirmEmailPath, email, token)
}

// PasswordResetLink builds the client URL the user opens to choose a new password.
func (m MailSettings) PasswordResetLink(email, token string) string {
	return m.link(m.ResetPasswordPath, email, token)
}

func (m MailSettings) link(path, email, token string) string {
	base := strings.TrimRight(m.ClientURL, "/") + "/" + strings.TrimLeft(path, "/")
	query := url.Values{}
	query.Set("token", token)
	query.Set("email", email)
	return base + "?" + query.Encode()
}

func (m MailSettings) confirmationMessage(user *domain.User, token string) (domain.Message, error) {
	return m.render(user, confirmationSubject, m.ConfirmationLink(user.Email, token), confirmationHTML, confirmationText)
}

func (m MailSettings) passwordResetMessage(user *domain.User, token string) (domain.Message, error) {
	return m.render(user, passwordResetSubject, m.PasswordResetLink(user.Email, token), passwordResetHTML, passwordResetText)
}

func (m MailSettings) render(
	user *domain.User,
	subject, link string,
	htmlTmpl *htmltemplate.Template,
	textTmpl *texttemplate.Template,
) (domain.Message, error) {
	data := mailData{
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		Link:            link,
		ApplicationName: m.ApplicationName,
	}

	var html, text bytes.Buffer
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return domain.Message{}, err
	}
	if err := textTmpl.Execute(&text, data); err != nil {
		return domain.Message{}, err
	}

	return domain.Message{
		To:       user.Email,
		Subject:  subject,
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}
