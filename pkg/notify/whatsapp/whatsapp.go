// Package whatsapp sends template-free text messages through the
// WhatsApp Business Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/markazapp/markaz-admin-api/pkg/config"
)

type Client struct {
	httpClient    *http.Client
	baseURL       string
	accessToken   string
	phoneNumberID string
}

func New(cfg config.WhatsAppConfig) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// SendText delivers a plain text message to a phone number in E.164
// form and returns the provider message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read whatsapp response: %w", err)
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode whatsapp response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		msg := "unknown error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("whatsapp api status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("whatsapp api returned no message id")
	}
	return parsed.Messages[0].ID, nil
}
