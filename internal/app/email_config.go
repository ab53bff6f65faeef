package app

import "github.com/tom2984/aac-sub001/pkg/mail"

// MailSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) MailSettings() mail.Settings {
	return mail.Settings{
		Driver: mail.Driver(c.Driver),
		From:   c.From,
		SMTP: mail.SMTPSettings{
			Enabled:  c.Driver == string(mail.DriverSMTP),
			Host:     c.SMTP.Host,
			Port:     c.SMTP.Port,
			Username: c.SMTP.Username,
			Password: c.SMTP.Password,
			From:     c.From,
			UseTLS:   c.SMTP.UseTLS,
			Timeout:  c.SMTP.Timeout,
		},
		Webhook: mail.WebhookSettings{
			URL:     c.Webhook.URL,
			Secret:  c.Webhook.Secret,
			From:    c.From,
			Timeout: c.Webhook.Timeout,
		},
		SES: mail.SESSettings{
			Region:          c.SES.Region,
			AccessKeyID:     c.SES.AccessKeyID,
			SecretAccessKey: c.SES.SecretAccessKey,
			SessionToken:    c.SES.SessionToken,
			From:            c.From,
		},
	}
}
