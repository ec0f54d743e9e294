package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"voxmeter/internal/config"
	"voxmeter/internal/model"
)

// Client is a thin wrapper around the Vapi REST API. Errors are returned to
// the caller with the vendor status and body embedded; nothing is retried.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg config.VapiConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type PhoneNumber struct {
	ID     string `json:"id"`
	Number string `json:"number"`
}

type CreatePhoneNumberParams struct {
	Provider    model.ProviderName `json:"provider"`
	Number      string             `json:"number"`
	Name        string             `json:"name,omitempty"`
	Credentials json.RawMessage    `json:"credentials,omitempty"`
}

// CreatePhoneNumber registers a user-owned telephony number with Vapi and
// returns the assigned phone-number id.
func (c *Client) CreatePhoneNumber(ctx context.Context, params CreatePhoneNumberParams) (PhoneNumber, error) {
	var number PhoneNumber
	if err := c.do(ctx, http.MethodPost, "/phone-number", params, &number); err != nil {
		return PhoneNumber{}, fmt.Errorf("failed to create Vapi phone number: %w", err)
	}

	c.logger.InfoContext(ctx, "Registered phone number with Vapi",
		"phone_number_id", number.ID, "provider", params.Provider)
	return number, nil
}

func (c *Client) DeletePhoneNumber(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/phone-number/"+id, nil, nil); err != nil {
		return fmt.Errorf("failed to delete Vapi phone number: %w", err)
	}
	return nil
}

type Assistant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateAssistantParams struct {
	Name         string `json:"name"`
	FirstMessage string `json:"firstMessage,omitempty"`
}

func (c *Client) CreateAssistant(ctx context.Context, params CreateAssistantParams) (Assistant, error) {
	var assistant Assistant
	if err := c.do(ctx, http.MethodPost, "/assistant", params, &assistant); err != nil {
		return Assistant{}, fmt.Errorf("failed to create Vapi assistant: %w", err)
	}

	c.logger.InfoContext(ctx, "Created Vapi assistant", "assistant_id", assistant.ID, "name", params.Name)
	return assistant, nil
}

func (c *Client) DeleteAssistant(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/assistant/"+id, nil, nil); err != nil {
		return fmt.Errorf("failed to delete Vapi assistant: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.ErrorContext(ctx, "Vapi request failed",
			"method", method, "path", path, "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("vapi returned %d: %s", resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
