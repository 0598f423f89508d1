package mailer

import (
	"context"

	"github.com/kelseyhightower/envconfig"
)

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is an outgoing email.
type Message struct {
	To         []string
	Cc         []string
	Bcc        []string
	Subject    string
	Body       string
	Attachment *Attachment
}

// Recipients returns every address the message is delivered to.
func (m Message) Recipients() []string {
	recipients := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	recipients = append(recipients, m.To...)
	recipients = append(recipients, m.Cc...)
	recipients = append(recipients, m.Bcc...)
	return recipients
}

type Mailer interface {
	Send(ctx context.Context, message Message) error
}

type Config struct {
	Host     string `envconfig:"SMTP_HOST"`
	Port     int    `envconfig:"SMTP_PORT" default:"587"`
	Username string `envconfig:"SMTP_USERNAME"`
	Password string `envconfig:"SMTP_PASSWORD"`
	From     string `envconfig:"SMTP_FROM"`
}

// LoadConfig reads the mailer configuration from the environment. With
// no SMTP host configured, mail delivery is a no-op.
func LoadConfig() (Mailer, error) {
	cfg := &Config{}
	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return &DisabledMailer{}, nil
	}
	return NewSMTPMailer(cfg), nil
}

type DisabledMailer struct{}

func (m *DisabledMailer) Send(ctx context.Context, message Message) error { return nil }
