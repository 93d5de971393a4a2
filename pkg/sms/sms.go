// Package sms provides SMS delivery implementations behind the
// protocol.SMSSender contract.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/reapflow/reapflow/pkg/protocol"
)

// GatewaySender posts messages to a JSON SMS gateway. The idempotency key is
// forwarded as a header so gateway-side dedupe can absorb engine retries.
type GatewaySender struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

func NewGatewaySender(endpoint, apiKey string, logger *slog.Logger) *GatewaySender {
	return &GatewaySender{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger.With("module", "sms"),
	}
}

type gatewayPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *GatewaySender) Send(ctx context.Context, msg protocol.SMSMessage) error {
	body, err := json.Marshal(gatewayPayload{To: msg.To, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	if msg.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", msg.IdempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

		return fmt.Errorf("SMS gateway returned status %d: %s", resp.StatusCode, string(detail))
	}

	s.logger.InfoContext(ctx, "SMS sent", "to", msg.To)

	return nil
}

// MemorySender records messages instead of delivering them, dropping
// duplicate idempotency keys.
type MemorySender struct {
	mu   sync.Mutex
	sent []protocol.SMSMessage
	keys map[string]bool
}

func NewMemorySender() *MemorySender {
	return &MemorySender{keys: make(map[string]bool)}
}

func (s *MemorySender) Send(_ context.Context, msg protocol.SMSMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.IdempotencyKey != "" && s.keys[msg.IdempotencyKey] {
		return nil
	}

	if msg.IdempotencyKey != "" {
		s.keys[msg.IdempotencyKey] = true
	}

	s.sent = append(s.sent, msg)

	return nil
}

// Sent returns a copy of the delivered messages.
func (s *MemorySender) Sent() []protocol.SMSMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.SMSMessage, len(s.sent))
	copy(out, s.sent)

	return out
}
