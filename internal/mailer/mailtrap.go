package mailer

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/mail.v2"
)

const (
	mailtrapHost = "live.smtp.mailtrap.io"
	mailtrapPort = 587
)

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

type MailTrapClient struct {
	fromEmail string
	dialer    sender
	backoff   time.Duration
}

func NewMailTrapClient(apiKey, fromEmail string) (*MailTrapClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	return &MailTrapClient{
		fromEmail: fromEmail,
		dialer:    mail.NewDialer(mailtrapHost, mailtrapPort, "api", apiKey),
		backoff:   time.Second,
	}, nil
}

func (m *MailTrapClient) Send(templateFile, username, email string, data any) (int, error) {
	subject, body, err := render(templateFile, data)
	if err != nil {
		return -1, err
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.fromEmail, FromName))
	msg.SetHeader("To", msg.FormatAddress(email, username))
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	var lastErr error
	for i := range maxRetries {
		if lastErr = m.dialer.DialAndSend(msg); lastErr == nil {
			return 200, nil
		}
		// linear backoff between attempts
		time.Sleep(m.backoff * time.Duration(i+1))
	}
	return -1, fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, lastErr)
}
