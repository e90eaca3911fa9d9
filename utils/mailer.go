package utils

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"courselite/config"
)

// SendEmailParams carries one outbound message
type SendEmailParams struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer is the outbound email transport. Any non-nil error is treated
// uniformly as a delivery failure; the engine does not distinguish
// bounces from provider errors.
type Mailer interface {
	Send(params SendEmailParams) error
}

// SMTPMailer delivers via the configured SMTP relay
type SMTPMailer struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// NewSMTPMailer builds a mailer from the loaded app configuration
func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{
		Host:      config.AppConfig.SMTPHost,
		Port:      config.AppConfig.SMTPPort,
		Username:  config.AppConfig.SMTPUsername,
		Password:  config.AppConfig.SMTPPassword,
		FromEmail: config.AppConfig.FromEmail,
		FromName:  config.AppConfig.FromName,
	}
}

func (m *SMTPMailer) Send(params SendEmailParams) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail))
	msg.SetHeader("To", params.To)
	msg.SetHeader("Subject", params.Subject)

	text := params.Text
	if text == "" {
		text = StripHTML(params.HTML)
	}
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", params.HTML)

	d := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	return nil
}
