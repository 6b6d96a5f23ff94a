package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBrevoBaseURL = "https://api.brevo.com/v3"
	defaultTimeout      = 10 * time.Second
	maxErrorBody        = 2048
)

var (
	// ErrMissingRecipient is returned when a message has no recipient address.
	ErrMissingRecipient = errors.New("mailer: recipient email is required")
	// ErrRejected indicates the provider answered with a non-success status.
	ErrRejected = errors.New("mailer: message rejected")
)

// Address identifies a sender or recipient.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Message is a rendered transactional email.
type Message struct {
	To      Address
	Subject string
	HTML    string
	Tags    []string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// BrevoConfig configures the Brevo transactional email client.
type BrevoConfig struct {
	APIKey     string
	Sender     Address
	BaseURL    string
	HTTPClient *http.Client
}

// BrevoClient sends mail through the Brevo transactional email API.
type BrevoClient struct {
	apiKey  string
	sender  Address
	baseURL string
	http    *http.Client
}

// NewBrevoClient validates configuration and returns a client.
func NewBrevoClient(cfg BrevoConfig) (*BrevoClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("mailer: brevo api key is required")
	}
	if strings.TrimSpace(cfg.Sender.Email) == "" {
		return nil, errors.New("mailer: sender email is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBrevoBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &BrevoClient{
		apiKey:  apiKey,
		sender:  cfg.Sender,
		baseURL: baseURL,
		http:    client,
	}, nil
}

type brevoPayload struct {
	Sender      Address   `json:"sender"`
	To          []Address `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
	Tags        []string  `json:"tags,omitempty"`
}

// Send posts msg to the smtp/email endpoint.
func (c *BrevoClient) Send(ctx context.Context, msg Message) error {
	to := msg.To
	to.Email = strings.TrimSpace(to.Email)
	if to.Email == "" {
		return ErrMissingRecipient
	}
	if strings.TrimSpace(to.Name) == "" {
		to.Name = to.Email
	}

	payload, err := json.Marshal(brevoPayload{
		Sender:      c.sender,
		To:          []Address{to},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		Tags:        msg.Tags,
	})
	if err != nil {
		return fmt.Errorf("mailer: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/smtp/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("mailer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
