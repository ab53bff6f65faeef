package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured signals that no delivery transport has been configured. Callers
// treat it as a deployment problem rather than a transient failure.
var ErrNotConfigured = errors.New("mail: delivery not configured")

// Message represents an outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string

	// Template names the logical email for transports that render remotely (webhook).
	Template string
	// Data carries the structured payload the body was composed from.
	Data map[string]any
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// UpstreamError reports a rejected or failed call to a remote delivery service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("mail: %s responded with status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("mail: %s request failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Driver names a delivery transport.
type Driver string

const (
	DriverNone    Driver = ""
	DriverSMTP    Driver = "smtp"
	DriverWebhook Driver = "webhook"
	DriverSES     Driver = "ses"
	DriverLog     Driver = "log"
)

// Settings selects and configures the delivery transport.
type Settings struct {
	Driver  Driver
	From    string
	SMTP    SMTPSettings
	Webhook WebhookSettings
	SES     SESSettings
}

// New builds the Mailer selected by settings.Driver. An empty driver yields a mailer
// whose Send always returns ErrNotConfigured so the application can still start.
func New(ctx context.Context, settings Settings) (Mailer, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(string(settings.Driver)))) {
	case DriverNone:
		return unconfigured{}, nil
	case DriverSMTP:
		cfg := settings.SMTP
		cfg.Enabled = true
		if cfg.From == "" {
			cfg.From = settings.From
		}
		return NewSMTPMailer(cfg)
	case DriverWebhook:
		cfg := settings.Webhook
		if cfg.From == "" {
			cfg.From = settings.From
		}
		return NewWebhookMailer(cfg)
	case DriverSES:
		cfg := settings.SES
		if cfg.From == "" {
			cfg.From = settings.From
		}
		return NewSESMailer(ctx, cfg)
	case DriverLog:
		return NewLogMailer(settings.From), nil
	default:
		return nil, fmt.Errorf("mail: unsupported driver %q", settings.Driver)
	}
}

type unconfigured struct{}

func (unconfigured) Send(context.Context, Message) error {
	return ErrNotConfigured
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}
