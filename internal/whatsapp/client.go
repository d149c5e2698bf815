package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devsfort/whatsapp-relay/internal/config"
)

type ErrType string

const (
	ErrTypeGeneral      ErrType = "general"
	ErrTypeReEngagement ErrType = "re_engagement"
)

// Vendor error codes the relay treats specially.
const (
	// codeReEngagement: recipient must message first within the 24h window.
	codeReEngagement = 131047
	// codeExpiredToken: OAuth token no longer valid.
	codeExpiredToken = 190
)

// APIError is a failed Cloud API call, classified for callers.
type APIError struct {
	StatusCode int
	Message    string
	Code       int
	Type       ErrType
	Raw        json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// SendResult is a successful Cloud API send.
type SendResult struct {
	MessageID string
	Raw       json.RawMessage
}

// Client wraps outbound calls to the Cloud API messages endpoint.
type Client struct {
	accessToken   string
	phoneNumberID string
	endpoint      string
	client        *http.Client
}

func NewClient(cfg config.WhatsAppConfig) *Client {
	return &Client{
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		endpoint:      fmt.Sprintf("%s/%s/%s/messages", cfg.BaseURL, cfg.APIVersion, cfg.PhoneNumberID),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendText sends a free-form text message to a normalized number.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
}

// SendTemplate sends a pre-approved template message with optional body
// parameters.
func (c *Client) SendTemplate(ctx context.Context, to, templateName string, params []string) (*SendResult, error) {
	tpl := map[string]any{
		"name":     templateName,
		"language": map[string]string{"code": "en"},
	}
	if len(params) > 0 {
		body := make([]map[string]string, 0, len(params))
		for _, p := range params {
			body = append(body, map[string]string{"type": "text", "text": p})
		}
		tpl["components"] = []map[string]any{
			{"type": "body", "parameters": body},
		}
	}

	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          tpl,
	})
}

type apiResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, payload map[string]any) (*SendResult, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("failed to decode json: %w body=%q", err, string(raw))
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    "Unknown error",
			Type:       ErrTypeGeneral,
			Raw:        raw,
		}
		if ar.Error != nil {
			apiErr.Message = ar.Error.Message
			apiErr.Code = ar.Error.Code
			if ar.Error.Code == codeReEngagement {
				apiErr.Type = ErrTypeReEngagement
			}
		}
		return nil, apiErr
	}

	if len(ar.Messages) == 0 || ar.Messages[0].ID == "" {
		return nil, fmt.Errorf("missing message id in response body=%q", string(raw))
	}

	return &SendResult{MessageID: ar.Messages[0].ID, Raw: raw}, nil
}
