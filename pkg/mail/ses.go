package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESSettings configure delivery through Amazon SES v2.
type SESSettings struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	From            string
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type sesMailer struct {
	client sesAPI
	from   string
}

// NewSESMailer builds an SES-backed Mailer. Static credentials are used when both key
// parts are provided; otherwise the default AWS credential chain applies.
func NewSESMailer(ctx context.Context, cfg SESSettings) (Mailer, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return nil, fmt.Errorf("ses: region is required: %w", ErrNotConfigured)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}

	return newSESMailer(sesv2.NewFromConfig(awsCfg), cfg.From), nil
}

func newSESMailer(client sesAPI, from string) *sesMailer {
	return &sesMailer{client: client, from: strings.TrimSpace(from)}
}

func (m *sesMailer) Send(ctx context.Context, msg Message) error {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("ses: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.from
	}
	if from == "" {
		return fmt.Errorf("ses: sender address is required: %w", ErrNotConfigured)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: recipients,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body)},
				},
			},
		},
	}

	output, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return &UpstreamError{Service: "ses", Err: err}
	}
	if output == nil {
		return &UpstreamError{Service: "ses", Err: errors.New("empty response")}
	}
	return nil
}
