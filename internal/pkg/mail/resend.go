package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// resendTransport talks to the Resend HTTP API.
type resendTransport struct {
	baseURL string
	apiKey  string
	from    string
	replyTo string
	client  *http.Client
}

type resendEmail struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type resendError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func newResendTransport(cfg Config, client *http.Client) *resendTransport {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	base := strings.TrimRight(cfg.ResendBaseURL, "/")
	if base == "" {
		base = "https://api.resend.com"
	}
	return &resendTransport{
		baseURL: base,
		apiKey:  cfg.ResendKey,
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
		client:  client,
	}
}

func (t *resendTransport) Name() string { return "resend" }

func (t *resendTransport) Send(ctx context.Context, msg Message) error {
	return t.post(ctx, "/emails", t.toPayload(msg))
}

// SendBatch uses /emails/batch. Resend accepts or rejects the batch as a
// whole, so every slot carries the same outcome.
func (t *resendTransport) SendBatch(ctx context.Context, msgs []Message) []error {
	payload := make([]resendEmail, 0, len(msgs))
	for _, m := range msgs {
		payload = append(payload, t.toPayload(m))
	}
	errs := make([]error, len(msgs))
	if err := t.post(ctx, "/emails/batch", payload); err != nil {
		fill(errs, err)
	}
	return errs
}

func (t *resendTransport) toPayload(msg Message) resendEmail {
	return resendEmail{
		From:    t.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: t.replyTo,
		Headers: msg.Headers,
	}
}

func (t *resendTransport) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp resendError
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message)
	}
	return nil
}
