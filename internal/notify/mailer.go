// Package notify sends email notifications. All sends are fire-and-forget:
// responses never wait on SMTP and a failed send only logs.
package notify

import (
	"os"
	"strconv"
	"strings"

	"casedesk/pkg/logger"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	host string
	port int
	user string
	pass string
	from string
}

func NewMailer() *Mailer {
	port, err := strconv.Atoi(strings.TrimSpace(os.Getenv("SMTP_PORT")))
	if err != nil {
		port = 587
	}
	return &Mailer{
		host: strings.TrimSpace(os.Getenv("SMTP_HOST")),
		port: port,
		user: strings.TrimSpace(os.Getenv("SMTP_USER")),
		pass: strings.TrimSpace(os.Getenv("SMTP_PASSWORD")),
		from: strings.TrimSpace(os.Getenv("SMTP_FROM")),
	}
}

// Send dispatches the mail in the background.
func (m *Mailer) Send(to, subject, htmlBody string) {
	if m.host == "" {
		logger.Sugar.Infof("SMTP not configured, dropping mail to %s (%s)", to, subject)
		return
	}

	go func() {
		msg := gomail.NewMessage()
		msg.SetHeader("From", m.from)
		msg.SetHeader("To", to)
		msg.SetHeader("Subject", subject)
		msg.SetBody("text/html", htmlBody)

		dialer := gomail.NewDialer(m.host, m.port, m.user, m.pass)
		if err := dialer.DialAndSend(msg); err != nil {
			logger.Sugar.Errorf("Failed to send mail to %s: %v", to, err)
		}
	}()
}
