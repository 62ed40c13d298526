package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/unclebandit/certificate-service/internal/config"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth

	send sendFunc
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	s := &SMTPSender{
		Addr: fmt.Sprintf("%s:%s", cfg.SMTPHost, cfg.SMTPPort),
		From: cfg.From,
		send: smtp.SendMail,
	}
	if cfg.Username != "" {
		s.Auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := msg.From
	if from == "" {
		from = s.From
	}
	body, err := buildMIME(from, msg)
	if err != nil {
		return err
	}
	return s.send(s.Addr, s.Auth, from, []string{msg.To}, body)
}

// buildMIME renders an RFC 822 message. A message with an HTML part is
// sent as multipart/alternative with the text part first.
func buildMIME(from string, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
	}

	if msg.HTML == "" {
		headers = append(headers, "Content-Type: text/plain; charset=UTF-8", "", msg.Text)
		buf.WriteString(strings.Join(headers, "\r\n"))
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	headers = append(headers, fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", mw.Boundary()), "", "")
	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n"))

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, fmt.Errorf("failed to build mail part: %w", err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("failed to write mail part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close mail body: %w", err)
	}
	out.Write(buf.Bytes())
	return out.Bytes(), nil
}
