package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
)

// SMTPMailer delivers messages through a plain SMTP relay.
type SMTPMailer struct {
	cfg *Config
}

func NewSMTPMailer(cfg *Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, message Message) error {
	content, err := m.encode(message)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	err = smtp.SendMail(addr, auth, m.cfg.From, message.Recipients(), content)
	if err != nil {
		return fmt.Errorf("failed to send mail %q: %w", message.Subject, err)
	}
	return nil
}

// encode renders the message as a MIME multipart document. Bcc
// recipients appear only in the SMTP envelope, never in the headers.
func (m *SMTPMailer) encode(message Message) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	if len(message.To) > 0 {
		fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(message.To, ", "))
	}
	if len(message.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(message.Cc, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", message.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	body, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": []string{"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err = body.Write([]byte(message.Body)); err != nil {
		return nil, err
	}

	if message.Attachment != nil {
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              []string{"application/octet-stream"},
			"Content-Transfer-Encoding": []string{"base64"},
			"Content-Disposition":       []string{fmt.Sprintf("attachment; filename=%q", message.Attachment.Filename)},
		})
		if err != nil {
			return nil, err
		}
		encoder := base64.NewEncoder(base64.StdEncoding, part)
		if _, err = encoder.Write(message.Attachment.Content); err != nil {
			return nil, err
		}
		if err = encoder.Close(); err != nil {
			return nil, err
		}
	}

	if err = writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
