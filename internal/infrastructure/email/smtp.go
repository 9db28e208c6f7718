package email

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	domain "accounts/backend/internal/domain/account"
	"accounts/backend/internal/logger"
	usecase "accounts/backend/internal/usecase/account"
)

// SMTPNotifier delivers mail through an SMTP relay.
// Port 465 uses implicit TLS, any other port upgrades with STARTTLS.
type SMTPNotifier struct {
	host     string
	port     int
	from     string
	fromName string
	auth     smtp.Auth
	timeout  time.Duration
	nowFunc  func() time.Time
}

var _ usecase.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier constructs an SMTP notifier.
func NewSMTPNotifier(host string, port int, username, password, from, fromName string, timeout time.Duration) *SMTPNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if from == "" {
		from = username
	}
	return &SMTPNotifier{
		host:     host,
		port:     port,
		from:     from,
		fromName: fromName,
		auth:     auth,
		timeout:  timeout,
		nowFunc:  time.Now,
	}
}

// Send delivers msg, giving up when ctx is done or the dial/IO deadline passes.
func (n *SMTPNotifier) Send(ctx context.Context, msg domain.Message) error {
	body, err := n.buildMessage(msg)
	if err != nil {
		return err
	}

	address := net.JoinHostPort(n.host, strconv.Itoa(n.port))
	dialer := &net.Dialer{Timeout: n.timeout}

	var conn net.Conn
	if n.port == 465 {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: n.host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		logger.Log.ErrorContext(ctx, "failed to connect to SMTP server", "address", address, "error", err)
		return err
	}
	defer conn.Close()

	deadline := n.nowFunc().Add(n.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, n.host)
	if err != nil {
		logger.Log.ErrorContext(ctx, "failed to create SMTP client", "error", err)
		return err
	}
	defer client.Close()

	if n.port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: n.host}); err != nil {
				logger.Log.ErrorContext(ctx, "failed to start TLS", "error", err)
				return err
			}
		}
	}

	return n.sendViaClient(ctx, client, msg.To, body)
}

func (n *SMTPNotifier) sendViaClient(ctx context.Context, client *smtp.Client, recipient string, body []byte) error {
	if n.auth != nil {
		if err := client.Auth(n.auth); err != nil {
			logger.Log.ErrorContext(ctx, "SMTP authentication failed", "error", err)
			return err
		}
	}
	if err := client.Mail(n.from); err != nil {
		logger.Log.ErrorContext(ctx, "failed to set sender", "error", err)
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		logger.Log.ErrorContext(ctx, "failed to set recipient", "error", err)
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// buildMessage renders a multipart/alternative message with text and HTML parts.
func (n *SMTPNotifier) buildMessage(msg domain.Message) ([]byte, error) {
	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=\"utf-8\"", msg.TextBody},
		{"text/html; charset=\"utf-8\"", msg.HTMLBody},
	} {
		if part.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	domainPart := n.host
	if _, d, ok := strings.Cut(n.from, "@"); ok {
		domainPart = d
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "Message-ID: %s\r\n", messageID(domainPart))
	fmt.Fprintf(&out, "Date: %s\r\n", n.nowFunc().Format(time.RFC1123Z))
	fmt.Fprintf(&out, "To: %s\r\n", msg.To)
	if n.fromName != "" {
		fmt.Fprintf(&out, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", n.fromName), n.from)
	} else {
		fmt.Fprintf(&out, "From: %s\r\n", n.from)
	}
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&out, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	out.Write(parts.Bytes())
	return out.Bytes(), nil
}

func messageID(domainPart string) string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("<%s@%s>", hex.EncodeToString(buf), domainPart)
}
