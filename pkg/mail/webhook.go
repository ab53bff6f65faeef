package mail

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when a secret is set.
const SignatureHeader = "X-Webhook-Signature"

// WebhookSettings configure delivery through an HTTP endpoint that sends the email on
// our behalf (an email provider webhook or a serverless function).
type WebhookSettings struct {
	URL     string
	Secret  string
	From    string
	Timeout time.Duration
	Client  *http.Client
}

type webhookPayload struct {
	From     string         `json:"from"`
	To       []string       `json:"to"`
	Subject  string         `json:"subject"`
	Text     string         `json:"text"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

type webhookMailer struct {
	endpoint string
	secret   []byte
	from     string
	client   *http.Client
}

// NewWebhookMailer validates cfg and returns a Mailer that POSTs JSON to cfg.URL.
// A missing URL is reported as ErrNotConfigured.
func NewWebhookMailer(cfg WebhookSettings) (Mailer, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("webhook: url is required: %w", ErrNotConfigured)
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("webhook: invalid url %q", endpoint)
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &webhookMailer{
		endpoint: endpoint,
		secret:   []byte(cfg.Secret),
		from:     strings.TrimSpace(cfg.From),
		client:   client,
	}, nil
}

func (m *webhookMailer) Send(ctx context.Context, msg Message) error {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("webhook: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.from
	}

	body, err := json.Marshal(webhookPayload{
		From:     from,
		To:       recipients,
		Subject:  msg.Subject,
		Text:     msg.Body,
		Template: msg.Template,
		Data:     msg.Data,
	})
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if len(m.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(m.secret, body))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return &UpstreamError{Service: "email webhook", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &UpstreamError{
			Service:    "email webhook",
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(snippet))),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sign returns the hex encoded HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
