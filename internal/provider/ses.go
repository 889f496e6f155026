package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
)

// sesAPI is the subset of the SES client used by SESSender.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender delivers through the Amazon SES SendEmail API.
type SESSender struct {
	bundle Bundle
	client sesAPI
}

// NewSESSender builds an SES client from the bundle's static credentials.
func NewSESSender(ctx context.Context, b Bundle) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.Get("region")))
	if err != nil {
		return nil, fmt.Errorf("%s: load aws config: %w", b.Name, err)
	}

	accessKey, secretKey := b.Get("access_key_id"), b.Get("secret_access_key")
	cfg.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			Source:          "mailrelay",
		}, nil
	})

	return &SESSender{bundle: b, client: ses.NewFromConfig(cfg)}, nil
}

func (s *SESSender) Name() string { return s.bundle.Name }

// Send submits one message through SendEmail.
func (s *SESSender) Send(ctx context.Context, msg *Message) Attempt {
	start := time.Now()

	input := &ses.SendEmailInput{
		Source: aws.String(formatAddress(msg.FromName, msg.From)),
		Destination: &types.Destination{
			ToAddresses: []string{formatAddress(msg.ToName, msg.To)},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
			},
		},
	}
	// SES tag values are restricted to [A-Za-z0-9_-]; only the first tag is sent.
	if len(msg.Tags) > 0 {
		if v := sesTagValue(msg.Tags[0]); v != "" {
			input.Tags = []types.MessageTag{{Name: aws.String("tag"), Value: aws.String(v)}}
		}
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		a := transportError(fmt.Errorf("%s: send email: %w", s.Name(), err), start)
		if sesRejected(err) {
			a.Outcome = Rejected
		}
		return a
	}
	return delivered(s.Name(), msg.To, aws.ToString(output.MessageId), 200, start)
}

func sesTagValue(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		case r == ' ' || r == '.':
			return '_'
		}
		return -1
	}, tag)
}

// sesRejected reports whether an SES error will fail again on the same
// account: unverified identities, refused content, paused sending.
func sesRejected(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "MessageRejected",
		"MailFromDomainNotVerifiedException",
		"AccountSendingPausedException",
		"ConfigurationSetSendingPausedException",
		"InvalidParameterValue":
		return true
	}
	return ae.ErrorFault() == smithy.FaultClient && ae.ErrorCode() != "Throttling"
}
