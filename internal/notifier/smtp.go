package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPNotifier sends plaintext mail through a relay with PLAIN auth.
type SMTPNotifier struct {
	addr       string
	auth       smtp.Auth
	from       string
	adminEmail string
	portalName string
}

var _ Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier builds a notifier for the given relay.
func NewSMTPNotifier(host string, port int, username, password, from, adminEmail, portalName string) *SMTPNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPNotifier{
		addr:       fmt.Sprintf("%s:%d", host, port),
		auth:       auth,
		from:       from,
		adminEmail: adminEmail,
		portalName: portalName,
	}
}

func (n *SMTPNotifier) SendVerificationCode(ctx context.Context, email, name, code string) error {
	subject := fmt.Sprintf("%s: your verification code", n.portalName)
	body := fmt.Sprintf("Hi %s,\n\nYour verification code is %s. It expires in 15 minutes.\n", name, code)
	return n.send(ctx, email, subject, body)
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, email, name, resetLink string) error {
	subject := fmt.Sprintf("%s: password reset", n.portalName)
	body := fmt.Sprintf("Hi %s,\n\nUse the link below to reset your password. It expires in 1 hour.\n\n%s\n", name, resetLink)
	return n.send(ctx, email, subject, body)
}

func (n *SMTPNotifier) SendWelcome(ctx context.Context, email, name string) error {
	subject := fmt.Sprintf("Welcome to %s", n.portalName)
	body := fmt.Sprintf("Hi %s,\n\nYour account has been created. You will be notified once it is approved.\n", name)
	return n.send(ctx, email, subject, body)
}

func (n *SMTPNotifier) SendAdminNotification(ctx context.Context, name, email, company string) error {
	subject := fmt.Sprintf("%s: new account awaiting approval", n.portalName)
	body := fmt.Sprintf("A new account is awaiting approval.\n\nName: %s\nEmail: %s\nCompany: %s\n", name, email, company)
	return n.send(ctx, n.adminEmail, subject, body)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + n.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
