package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// smtpTransport sends one message per SMTP session.
type smtpTransport struct {
	addr    string
	host    string
	user    string
	pass    string
	from    string
	replyTo string
}

func newSMTPTransport(cfg Config) *smtpTransport {
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.SMTPUser
	}
	return &smtpTransport{
		addr:    net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(port)),
		host:    cfg.SMTPHost,
		user:    cfg.SMTPUser,
		pass:    cfg.SMTPPass,
		from:    from,
		replyTo: cfg.ReplyTo,
	}
}

func (t *smtpTransport) Name() string { return "smtp" }

func (t *smtpTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if t.user != "" {
		auth = smtp.PlainAuth("", t.user, t.pass, t.host)
	}
	return smtp.SendMail(t.addr, auth, envelopeAddress(t.from), msg.To, t.render(msg))
}

func (t *smtpTransport) SendBatch(ctx context.Context, msgs []Message) []error {
	errs := make([]error, len(msgs))
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		errs[i] = t.Send(ctx, m)
	}
	return errs
}

func (t *smtpTransport) render(msg Message) []byte {
	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString(fmt.Sprintf("From: %s\r\n", t.from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	body.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	if t.replyTo != "" {
		body.WriteString(fmt.Sprintf("Reply-To: %s\r\n", t.replyTo))
	}
	for k, v := range msg.Headers {
		body.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	body.WriteString("\r\n")
	if msg.HTML != "" {
		body.WriteString(msg.HTML)
	} else {
		body.WriteString(msg.Text)
	}
	return body.Bytes()
}

// envelopeAddress strips a display name: "Inkwell <news@x.io>" -> "news@x.io".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return strings.TrimSpace(from)
}
