package whatsappclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wolfman30/medspa-booking-assistant/internal/reminders"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// Config controls how the Cloud API client behaves.
type Config struct {
	BaseURL    string
	PhoneID    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
	Logger     *logging.Logger
}

// Client sends WhatsApp messages through the Meta Cloud API.
type Client struct {
	http    *resty.Client
	phoneID string
	logger  *logging.Logger
}

// APIError is a non-2xx response from the Cloud API.
type APIError struct {
	StatusCode int
	Code       int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsappclient: api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether the provider may accept the same request later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("whatsappclient: access token is required")
	}
	if strings.TrimSpace(cfg.PhoneID) == "" {
		return nil, errors.New("whatsappclient: phone number id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.Token).
		SetRetryCount(retries).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(8*wait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{http: rc, phoneID: cfg.PhoneID, logger: logger}, nil
}

// SendText sends a plain text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" || strings.TrimSpace(body) == "" {
		return "", errors.New("whatsappclient: recipient and body required")
	}
	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"preview_url": false, "body": body},
	})
}

// MarkAsRead acknowledges an inbound message so the sender sees blue ticks.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return errors.New("whatsappclient: message id required")
	}
	_, err := c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
	return err
}

// Deliver satisfies reminders.Sender.
func (c *Client) Deliver(ctx context.Context, to, body string) reminders.DeliveryResult {
	id, err := c.SendText(ctx, to, body)
	if err != nil {
		return reminders.DeliveryResult{Status: reminders.Failed, Err: err}
	}
	return reminders.DeliveryResult{Status: reminders.Delivered, ProviderMessageID: id}
}

func (c *Client) send(ctx context.Context, payload map[string]any) (string, error) {
	out, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", errors.New("whatsappclient: response missing message id")
	}
	return out.Messages[0].ID, nil
}

func (c *Client) post(ctx context.Context, payload map[string]any) (*sendResponse, error) {
	var out sendResponse
	var apiErr errorEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&apiErr).
		Post("/" + c.phoneID + "/messages")
	if err != nil {
		return nil, fmt.Errorf("whatsappclient: post messages: %w", err)
	}
	if resp.IsError() {
		e := &APIError{
			StatusCode: resp.StatusCode(),
			Code:       apiErr.Error.Code,
			Type:       apiErr.Error.Type,
			Message:    apiErr.Error.Message,
		}
		if e.Message == "" {
			e.Message = strings.TrimSpace(resp.String())
		}
		c.logger.Warn("whatsapp api error", "status", e.StatusCode, "code", e.Code, "attempts", resp.Request.Attempt)
		return nil, e
	}
	return &out, nil
}
