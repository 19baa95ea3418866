package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WhatsAppSender posts messages to an HTTP WhatsApp gateway.
type WhatsAppSender struct {
	gatewayURL string
	token      string
	httpClient *http.Client
}

// NewWhatsAppSender constructs a gateway-backed sender.
func NewWhatsAppSender(gatewayURL, token string) *WhatsAppSender {
	return &WhatsAppSender{
		gatewayURL: gatewayURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Channel identifies the delivery channel.
func (s *WhatsAppSender) Channel() string { return "whatsapp" }

// Send posts a single text message. The gateway expects a phone number
// in international format.
func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	if s.gatewayURL == "" {
		return fmt.Errorf("whatsapp gateway not configured")
	}
	if msg.To == "" {
		return fmt.Errorf("whatsapp recipient missing")
	}

	payload, err := json.Marshal(map[string]string{
		"phone":   msg.To,
		"message": msg.Body,
	})
	if err != nil {
		return fmt.Errorf("encode whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
