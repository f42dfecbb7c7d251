package mail

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/giall/hecate/notify"
)

// SMTPConfig holds SMTP settings for the mail transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Validate checks if the SMTP configuration is usable.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return errors.New("mail: missing SMTP host")
	}
	if c.Port == 0 {
		return errors.New("mail: missing SMTP port")
	}
	if c.From == "" {
		return errors.New("mail: missing sender address")
	}
	return nil
}

// SMTPSender renders notifications and sends them over SMTP.
type SMTPSender struct {
	config SMTPConfig
	site   Site
	send   func(msg *gomail.Message) error
}

// NewSMTPSender creates a sender that dials the configured server per message.
func NewSMTPSender(cfg SMTPConfig, site Site) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)

	return &SMTPSender{
		config: cfg,
		site:   site,
		send:   func(msg *gomail.Message) error { return dialer.DialAndSend(msg) },
	}, nil
}

// Send implements notify.Sender.
func (s *SMTPSender) Send(ctx context.Context, msg notify.Message) error {
	if msg.Email == "" {
		return fmt.Errorf("mail: no recipient for %s message", msg.Kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rendered, err := s.site.Render(msg)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	s.setMessage(m, msg, rendered)

	done := make(chan error, 1)
	go func() { done <- s.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mail: send %s: %w", msg.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTPSender) setMessage(m *gomail.Message, msg notify.Message, r Rendered) {
	fromName := s.config.FromName
	if fromName == "" {
		fromName = s.site.AppName
	}
	m.SetAddressHeader("From", s.config.From, fromName)
	m.SetAddressHeader("To", msg.Email, msg.Username)
	m.SetHeader("Subject", r.Subject)
	m.SetBody("text/plain", r.Text)
	m.AddAlternative("text/html", r.HTML)
}
