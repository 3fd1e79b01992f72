package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/pkg/logger"
)

const defaultBaseURL = "https://graph.facebook.com/v18.0"

// Client is the Cloud API implementation of OutboundChannel.
type Client struct {
	http          *resty.Client
	phoneNumberID string
	logger        *logger.Logger
}

// ClientConfig configures the Cloud API client.
type ClientConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
}

// NewClient creates a Cloud API client.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp access token cannot be empty")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone number id cannot be empty")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(cfg.AccessToken).
		SetTimeout(timeout)

	return &Client{
		http:          http,
		phoneNumberID: cfg.PhoneNumberID,
		logger:        log,
	}, nil
}

var _ OutboundChannel = (*Client)(nil)

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (c *Client) SendText(ctx context.Context, toPhone, text string) (string, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                toPhone,
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	return c.sendMessage(ctx, body)
}

func (c *Client) SendMedia(ctx context.Context, toPhone, mediaID, mimeType, caption string) (string, error) {
	kind := mediaKind(mimeType)
	media := map[string]any{"id": mediaID}
	if caption != "" && kind != "audio" {
		media["caption"] = caption
	}
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                toPhone,
		"type":              kind,
		kind:                media,
	}
	return c.sendMessage(ctx, body)
}

func (c *Client) SendInteractiveList(ctx context.Context, toPhone, header string, options []ListOption) (string, error) {
	rows := make([]map[string]any, len(options))
	for i, opt := range options {
		rows[i] = map[string]any{"id": opt.ID, "title": opt.Title}
	}
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                toPhone,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "list",
			"body": map[string]any{"text": header},
			"action": map[string]any{
				"button":   "Options",
				"sections": []map[string]any{{"rows": rows}},
			},
		},
	}
	return c.sendMessage(ctx, body)
}

func (c *Client) sendMessage(ctx context.Context, body map[string]any) (string, error) {
	var result sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/messages", c.phoneNumberID))
	if err != nil {
		return "", fmt.Errorf("%w: send request: %v", model.ErrDelivery, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: send returned %s: %s", model.ErrDelivery, resp.Status(), resp.String())
	}
	if len(result.Messages) == 0 {
		return "", fmt.Errorf("%w: provider returned no message id", model.ErrDelivery)
	}
	return result.Messages[0].ID, nil
}

func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType, fileName string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", fileName, strings.NewReader(string(data))).
		SetFormData(map[string]string{
			"messaging_product": "whatsapp",
			"type":              mimeType,
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/media", c.phoneNumberID))
	if err != nil {
		return "", fmt.Errorf("%w: upload request: %v", model.ErrDelivery, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: upload returned %s: %s", model.ErrDelivery, resp.Status(), resp.String())
	}
	return result.ID, nil
}

func (c *Client) DownloadMediaURL(ctx context.Context, mediaID string) (string, error) {
	var result struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/" + mediaID)
	if err != nil {
		return "", fmt.Errorf("%w: media lookup request: %v", model.ErrDelivery, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: media lookup returned %s: %s", model.ErrDelivery, resp.Status(), resp.String())
	}
	return result.URL, nil
}

func (c *Client) MarkRead(ctx context.Context, externalMessageID string) error {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        externalMessageID,
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/%s/messages", c.phoneNumberID))
	if err != nil {
		return fmt.Errorf("%w: mark read request: %v", model.ErrDelivery, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: mark read returned %s: %s", model.ErrDelivery, resp.Status(), resp.String())
	}
	return nil
}

func mediaKind(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
