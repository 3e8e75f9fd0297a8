// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/samber/oops"

	"github.com/holomush/credreset/internal/auth"
)

// sesAPI is the part of *ses.Client SESSender calls.
type sesAPI interface {
	SendTemplatedEmail(ctx context.Context, params *ses.SendTemplatedEmailInput, optFns ...func(*ses.Options)) (*ses.SendTemplatedEmailOutput, error)
}

// SESConfig describes the templated email.
type SESConfig struct {
	// Source must be an address verified with SES.
	Source string
	// Template is the name of an SES template taking resetTemplateData.
	Template string
	// ResetURL is the page that accepts the token; the token is appended as a path segment.
	ResetURL url.URL
}

type resetTemplateData struct {
	Username  string `json:"username"`
	ResetURL  string `json:"reset_url"`
	ExpiresAt string `json:"expires_at"`
}

// SESSender delivers reset tokens as Amazon SES templated email.
type SESSender struct {
	client sesAPI
	cfg    SESConfig
}

// NewSESSender creates an SESSender around an SES client.
func NewSESSender(client sesAPI, cfg SESConfig) (*SESSender, error) {
	if client == nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("ses client is required")
	}
	if cfg.Source == "" || cfg.Template == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("ses source and template are required")
	}
	return &SESSender{client: client, cfg: cfg}, nil
}

// NewSESClient loads the default AWS configuration chain for region.
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, oops.Code("NOTIFY_AWS_CONFIG_FAILED").With("region", region).Wrap(err)
	}
	return ses.NewFromConfig(cfg), nil
}

// Send implements auth.NotificationSender.
func (s *SESSender) Send(ctx context.Context, address, token string, notice auth.ResetNotice) (auth.DeliveryResult, error) {
	data, err := json.Marshal(resetTemplateData{
		Username:  notice.Username,
		ResetURL:  s.cfg.ResetURL.JoinPath(token).String(),
		ExpiresAt: notice.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return auth.DeliveryResult{}, oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}

	out, err := s.client.SendTemplatedEmail(ctx, &ses.SendTemplatedEmailInput{
		Source: aws.String(s.cfg.Source),
		Destination: &types.Destination{
			ToAddresses: []string{address},
		},
		Template:     aws.String(s.cfg.Template),
		TemplateData: aws.String(string(data)),
	})
	if err != nil {
		return auth.DeliveryResult{}, oops.Code("NOTIFY_SES_FAILED").
			With("template", s.cfg.Template).
			With("user_id", notice.UserID.String()).
			Wrap(err)
	}
	return auth.DeliveryResult{Provider: "ses", MessageID: aws.ToString(out.MessageId)}, nil
}

var _ auth.NotificationSender = (*SESSender)(nil)
