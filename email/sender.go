package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"Pitstop/Models"
)

// Sender delivers plain or HTML mail through one SMTP account.
type Sender struct {
	Config Models.EmailConfig
}

func NewSender(config Models.EmailConfig) *Sender {
	return &Sender{Config: config}
}

// buildMessage renders headers and body in RFC 5322 form with sorted headers.
func buildMessage(config Models.EmailConfig, message Models.EmailMessage) []byte {
	headers := map[string]string{
		"From":    fmt.Sprintf("%s <%s>", config.FromName, config.FromEmail),
		"To":      strings.Join(message.To, ", "),
		"Subject": message.Subject,
	}
	if len(message.CC) > 0 {
		headers["Cc"] = strings.Join(message.CC, ", ")
	}
	if message.IsHTML {
		headers["MIME-Version"] = "1.0"
		headers["Content-Type"] = "text/html; charset=UTF-8"
	} else {
		headers["Content-Type"] = "text/plain; charset=UTF-8"
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(message.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// Send delivers the message. With TLSEnabled the connection is implicit TLS
// (port 465); otherwise smtp.SendMail negotiates STARTTLS when offered.
func (s *Sender) Send(message Models.EmailMessage) error {
	config := s.Config
	if len(message.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}
	body := buildMessage(config, message)
	recipients := append(append([]string{}, message.To...), message.CC...)
	serverAddr := fmt.Sprintf("%s:%d", config.SMTPServer, config.SMTPPort)

	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.SMTPServer)
	}

	if !config.TLSEnabled {
		if err := smtp.SendMail(serverAddr, auth, config.FromEmail, recipients, body); err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	}

	conn, err := tls.Dial("tcp", serverAddr, &tls.Config{
		ServerName:         config.SMTPServer,
		InsecureSkipVerify: config.SkipTLSCheck,
	})
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, config.SMTPServer)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}
	if err := client.Mail(config.FromEmail); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, r := range recipients {
		if err := client.Rcpt(r); err != nil {
			return fmt.Errorf("add recipient %s: %w", r, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}

// DigestMail mails each published board to a fixed recipient list.
type DigestMail struct {
	Sender  *Sender
	To      []string
	Subject string
}

func (d *DigestMail) Publish(_ context.Context, text string) error {
	return d.Sender.Send(Models.EmailMessage{
		To:      d.To,
		Subject: d.Subject,
		Body:    text,
	})
}
