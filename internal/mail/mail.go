// Package mail delivers the rendered digest over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	appLog "dailyagenda/internal/log"
)

// implicitTLSPort is the SMTPS port; every other port upgrades with STARTTLS.
const implicitTLSPort = 465

// Config holds SMTP settings.
type Config struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Validate reports the first missing setting.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("smtp host is required")
	case c.Port <= 0:
		return errors.New("smtp port is required")
	case c.From == "" && c.Username == "":
		return errors.New("smtp from address is required")
	case len(c.To) == 0:
		return errors.New("at least one recipient is required")
	}
	return nil
}

// Sender sends one HTML message.
type Sender interface {
	Send(ctx context.Context, subject, html string) error
}

// SMTPSender implements Sender with go-mail.
type SMTPSender struct {
	cfg     Config
	timeout time.Duration
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPSender{cfg: cfg, timeout: 30 * time.Second}, nil
}

func (s *SMTPSender) from() string {
	if s.cfg.From != "" {
		return s.cfg.From
	}
	return s.cfg.Username
}

func (s *SMTPSender) buildMessage(subject, html string) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(s.from()); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(subject)
	m.SetCharset(gomail.CharsetUTF8)
	m.SetBodyString(gomail.TypeTextHTML, html)
	return m, nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.timeout),
	}
	if s.cfg.Port == implicitTLSPort {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// Send delivers html to every configured recipient.
func (s *SMTPSender) Send(ctx context.Context, subject, html string) error {
	m, err := s.buildMessage(subject, html)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail via %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	appLog.Info("digest email sent", "to", strings.Join(s.cfg.To, ","), "subject", subject)
	return nil
}
