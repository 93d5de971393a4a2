// Package mailer provides email delivery implementations behind the
// protocol.EmailSender contract.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reapflow/reapflow/pkg/protocol"
)

const (
	resendEndpoint = "https://api.resend.com/emails"
	defaultFrom    = "ReapFlow <notifications@reapflow.app>"
)

// ResendSender delivers email through the Resend HTTP API. The execution's
// idempotency key is forwarded as the Idempotency-Key header, so engine
// retries of an already-delivered send are absorbed server-side.
type ResendSender struct {
	apiKey string
	from   string
	client *http.Client
	logger *slog.Logger
}

func NewResendSender(apiKey string, logger *slog.Logger) *ResendSender {
	return &ResendSender{
		apiKey: apiKey,
		from:   defaultFrom,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With("module", "mailer"),
	}
}

// WithFrom overrides the default sender address.
func (s *ResendSender) WithFrom(from string) *ResendSender {
	s.from = from

	return s
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *ResendSender) Send(ctx context.Context, msg protocol.EmailMessage) error {
	body, err := json.Marshal(resendPayload{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	if msg.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", msg.IdempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

		return fmt.Errorf("email API returned status %d: %s", resp.StatusCode, string(detail))
	}

	s.logger.InfoContext(ctx, "Email sent", "to", msg.To, "subject", msg.Subject)

	return nil
}
