package email

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	domain "accounts/backend/internal/domain/account"
	"accounts/backend/internal/logger"
	usecase "accounts/backend/internal/usecase/account"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMessage = domain.Message{
	To:       "jane@x.com",
	Subject:  "Confirm your email",
	TextBody: "Hello: Jane Doe",
	HTMLBody: "<p>Hello: Jane Doe</p>",
}

func TestNew_SelectsProvider(t *testing.T) {
	n, err := New(Settings{Provider: "log"})
	require.NoError(t, err)
	assert.IsType(t, LogNotifier{}, n)

	n, err = New(Settings{Provider: "SMTP", SMTPHost: "mail.local", SMTPPort: 587})
	require.NoError(t, err)
	assert.IsType(t, &SMTPNotifier{}, n)

	n, err = New(Settings{Provider: "sendgrid", SendGridAPIKey: "key", From: "no-reply@x.com"})
	require.NoError(t, err)
	assert.IsType(t, &SendGridNotifier{}, n)

	_, err = New(Settings{Provider: "smtp"})
	assert.Error(t, err)
	_, err = New(Settings{Provider: "sendgrid"})
	assert.Error(t, err)
	_, err = New(Settings{Provider: "pigeon"})
	assert.Error(t, err)
	_, err = New(Settings{})
	assert.Error(t, err)
}

func captureLog(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logger.Log
	logger.Log = logger.New(&buf, level, false)
	t.Cleanup(func() { logger.Log = prev })
	return &buf
}

func TestLogNotifier_Send(t *testing.T) {
	const secret = "Zm9vYmFyLXNlY3JldC10b2tlbi12YWx1ZQ"
	mail := usecase.MailSettings{ClientURL: "http://client.test", ConfirmEmailPath: "/confirm-email"}
	msg := testMessage
	msg.TextBody = "Hello: Jane Doe\n" + mail.ConfirmationLink("jane@x.com", secret) + "\n"

	t.Run("info omits body", func(t *testing.T) {
		buf := captureLog(t, "info")
		require.NoError(t, LogNotifier{}.Send(context.Background(), msg))

		out := buf.String()
		assert.Contains(t, out, "jane@x.com")
		assert.Contains(t, out, "Confirm your email")
		assert.NotContains(t, out, secret)
		assert.NotContains(t, out, "token=")
	})

	t.Run("debug redacts tokens", func(t *testing.T) {
		buf := captureLog(t, "debug")
		require.NoError(t, LogNotifier{}.Send(context.Background(), msg))

		out := buf.String()
		assert.Contains(t, out, "token=[redacted]")
		assert.NotContains(t, out, secret)
	})
}

func TestSMTPNotifier_BuildMessage(t *testing.T) {
	n := NewSMTPNotifier("mail.local", 587, "", "", "no-reply@x.com", "Accounts", time.Second)
	n.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	raw, err := n.buildMessage(testMessage)
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, "To: jane@x.com\r\n")
	assert.Contains(t, out, "From: Accounts <no-reply@x.com>\r\n")
	assert.Contains(t, out, "Subject: Confirm your email\r\n")
	assert.Contains(t, out, "@x.com>\r\n")
	assert.Contains(t, out, "multipart/alternative")
	assert.Contains(t, out, "Hello: Jane Doe")
	assert.Contains(t, out, "<p>Hello: Jane Doe</p>")
}

// fakeSMTP accepts one session and records the DATA payload.
type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	data string
	rcpt string
	done chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSMTP{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })

	go func() {
		defer close(f.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = io.WriteString(conn, s+"\r\n") }

		write("220 localhost ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250-localhost")
				write("250 8BITMIME")
			case strings.HasPrefix(cmd, "MAIL FROM"):
				write("250 OK")
			case strings.HasPrefix(cmd, "RCPT TO"):
				f.mu.Lock()
				f.rcpt = strings.TrimSpace(line)
				f.mu.Unlock()
				write("250 OK")
			case cmd == "DATA":
				write("354 End data with <CR><LF>.<CR><LF>")
				var b strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					b.WriteString(l)
				}
				f.mu.Lock()
				f.data = b.String()
				f.mu.Unlock()
				write("250 OK queued")
			case cmd == "QUIT":
				write("221 Bye")
				return
			default:
				write("250 OK")
			}
		}
	}()
	return f
}

func TestSMTPNotifier_Send(t *testing.T) {
	srv := startFakeSMTP(t)
	addr := srv.ln.Addr().(*net.TCPAddr)

	n := NewSMTPNotifier("127.0.0.1", addr.Port, "", "", "no-reply@x.com", "Accounts", 2*time.Second)
	require.NoError(t, n.Send(context.Background(), testMessage))

	<-srv.done
	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Contains(t, srv.rcpt, "jane@x.com")
	assert.Contains(t, srv.data, "Subject: Confirm your email")
	assert.Contains(t, srv.data, "Hello: Jane Doe")
}

func TestSMTPNotifier_SendHonoursDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// never greet
		time.Sleep(2 * time.Second)
		conn.Close()
	}()

	n := NewSMTPNotifier("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, "", "", "no-reply@x.com", "", 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = n.Send(ctx, testMessage)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSendGridNotifier_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, sendGridEndpoint, r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := newSendGridNotifierWithHost("test-key", srv.URL, "no-reply@x.com", "Accounts")
	require.NoError(t, n.Send(context.Background(), testMessage))

	assert.Equal(t, "Confirm your email", got["subject"])
	from, _ := got["from"].(map[string]any)
	assert.Equal(t, "no-reply@x.com", from["email"])
}

func TestSendGridNotifier_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"errors":[{"message":"bad key"}]}`)
	}))
	defer srv.Close()

	n := newSendGridNotifierWithHost("bad-key", srv.URL, "no-reply@x.com", "")
	err := n.Send(context.Background(), testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
