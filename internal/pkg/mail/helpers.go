package mail

import (
	"bytes"
	"html/template"
	"time"

	"github.com/inkwell-cms/core/internal/config"
)

// BuildConfig maps the application mail section onto a sender Config.
func BuildConfig(cfg config.MailConfig) Config {
	return Config{
		Enable:        cfg.Enable,
		Provider:      cfg.Provider,
		From:          cfg.From,
		ReplyTo:       cfg.ReplyTo,
		ResendKey:     cfg.ResendAPIKey,
		ResendBaseURL: cfg.ResendBaseURL,
		SMTPHost:      cfg.SMTP.Host,
		SMTPPort:      cfg.SMTP.Port,
		SMTPUser:      cfg.SMTP.User,
		SMTPPass:      cfg.SMTP.Pass,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
	}
}

const newsletterTpl = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
</head>
<body style="background-color:#fff;margin:0 auto;font-family:ui-sans-serif,system-ui,-apple-system,BlinkMacSystemFont,Segoe UI,Roboto,Helvetica Neue,Arial,sans-serif;padding:.5rem">
  <table align="center" width="100%" role="presentation" cellspacing="0" cellpadding="0" border="0" style="max-width:100%;border-radius:.375rem;margin:40px auto;padding:20px;width:600px;border:1px solid rgb(229,231,235)">
    <tbody>
      <tr><td>
        <p style="font-size:12px;color:rgb(107,114,128);margin:0 0 8px">{{.SiteName}}</p>
        <h1 style="font-size:22px;margin:0 0 24px">{{.Subject}}</h1>
        <div style="font-size:15px;line-height:26px;color:#111">{{.Body}}</div>
        {{if .Footer}}
        <hr style="width:100%;border:none;border-top:1px solid #eaeaea;margin:26px 0" />
        <p style="font-size:12px;line-height:20px;color:rgb(107,114,128)">{{.Footer}}</p>
        {{end}}
        {{if .UnsubscribeURL}}
        <p style="font-size:11px;line-height:20px;text-align:center;color:rgb(156,163,175)">
          You are receiving this because you subscribed to {{.SiteName}}.
          <a href="{{.UnsubscribeURL}}" target="_blank" style="color:rgb(156,163,175)">Unsubscribe</a>
        </p>
        {{end}}
        <p style="font-size:10px;text-align:center;color:rgb(156,163,175)">&copy;{{year}} {{.SiteName}}</p>
      </td></tr>
    </tbody>
  </table>
</body>
</html>`

const adminAlertTpl = `<!DOCTYPE html>
<html lang="en">
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">{{.Title}}</h2>
  <p>{{.Text}}</p>
  {{if .LinkURL}}
  <p style="margin-top:24px">
    <a href="{{.LinkURL}}" style="background:#4f46e5;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">{{.LinkText}}</a>
  </p>
  {{end}}
  <p style="color:#999;font-size:12px">Sent by {{.SiteName}}.</p>
</div>
</body>
</html>`

// NewsletterData is the data for a newsletter email. Body is already
// rendered HTML.
type NewsletterData struct {
	SiteName       string
	Subject        string
	Body           template.HTML
	Footer         string
	UnsubscribeURL string
}

// AdminAlertData is the data for short notices sent to the site admin.
type AdminAlertData struct {
	SiteName string
	Title    string
	Text     string
	LinkURL  string
	LinkText string
}

var (
	newsletterTemplate = mustTemplate(newsletterTpl)
	adminAlertTemplate = mustTemplate(adminAlertTpl)
)

func mustTemplate(tpl string) *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"year": func() int { return time.Now().Year() },
	}).Parse(tpl))
}

// RenderNewsletter renders the newsletter HTML for one recipient.
func RenderNewsletter(data NewsletterData) (string, error) {
	if data.SiteName == "" {
		data.SiteName = "Inkwell"
	}
	var buf bytes.Buffer
	if err := newsletterTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderAdminAlert renders an admin notice.
func RenderAdminAlert(data AdminAlertData) (string, error) {
	if data.SiteName == "" {
		data.SiteName = "Inkwell"
	}
	if data.LinkText == "" {
		data.LinkText = "Open"
	}
	var buf bytes.Buffer
	if err := adminAlertTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
