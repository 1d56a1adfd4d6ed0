// Package notifications sends alert emails. Delivery is best-effort: a
// failed send is logged and swallowed, never surfaced to the caller.
package notifications

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Mailer sends a plain-text email and reports whether it was delivered.
type Mailer interface {
	Send(to, subject, body string) bool
}

type smtpMailer struct {
	host     string
	port     int
	username string
	password string
}

// NewSMTPMailer creates a mailer over the configured SMTP relay.
func NewSMTPMailer(host string, port int, username, password string) Mailer {
	return &smtpMailer{host: host, port: port, username: username, password: password}
}

func (m *smtpMailer) Send(to, subject, body string) bool {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.username)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.host, m.port, m.username, m.password)
	if err := dialer.DialAndSend(msg); err != nil {
		logrus.Errorf("Failed to send email to %s: %v", to, err)
		return false
	}

	logrus.Infof("Sent alert email to %s", to)
	return true
}

type noopMailer struct{}

// NewNoop returns a mailer that delivers nothing. Used when email alerts
// are disabled.
func NewNoop() Mailer { return noopMailer{} }

func (noopMailer) Send(string, string, string) bool { return false }
