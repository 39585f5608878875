// Package email sends transactional mail through Resend.
package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/markazapp/markaz-admin-api/pkg/config"
)

type Client struct {
	resend *resend.Client
	from   string
}

func New(cfg config.EmailConfig) *Client {
	return &Client{
		resend: resend.NewClient(cfg.ResendAPIKey),
		from:   cfg.FromAddress,
	}
}

// Send delivers a plain text email and returns the provider message id.
func (c *Client) Send(ctx context.Context, to, subject, body string) (string, error) {
	sent, err := c.resend.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return "", fmt.Errorf("send email to %s: %w", to, err)
	}
	return sent.Id, nil
}
