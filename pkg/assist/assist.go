// Package assist provides content-generation implementations behind the
// protocol.Generator contract: a canned template generator that works with
// no external provider, and an HTTP client for a hosted model API.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reapflow/reapflow/pkg/protocol"
)

// CannedGenerator produces deterministic stub content per kind. It keeps the
// assistant endpoint functional when no provider key is configured.
type CannedGenerator struct{}

func NewCannedGenerator() *CannedGenerator {
	return &CannedGenerator{}
}

var cannedByKind = map[string]string{
	"email": "Subject: %s\n\nHi there,\n\nWe wanted to reach out about %s. Reply to this email and we'll take it from there.\n\nBest,\nThe team",
	"sms":   "Quick note about %s. Reply STOP to opt out.",
	"ad":    "Discover %s. Limited availability, act now.",
	"post":  "Big news: %s. Read on for the details.",
}

func (g *CannedGenerator) Generate(_ context.Context, prompt string, genCtx protocol.GenerationContext) (string, error) {
	format, ok := cannedByKind[genCtx.Kind]
	if !ok {
		format = "%s"
	}

	topic := strings.TrimSpace(prompt)
	if topic == "" {
		topic = "your business"
	}

	if strings.Count(format, "%s") == 2 {
		return fmt.Sprintf(format, topic, topic), nil
	}

	return fmt.Sprintf(format, topic), nil
}

// HTTPGenerator calls a hosted completion API.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPGenerator(endpoint, apiKey string, logger *slog.Logger) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger.With("module", "assist"),
	}
}

type generateRequest struct {
	Prompt    string         `json:"prompt"`
	Kind      string         `json:"kind"`
	Variables map[string]any `json:"variables,omitempty"`
}

type generateResponse struct {
	Content string `json:"content"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string, genCtx protocol.GenerationContext) (string, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:    prompt,
		Kind:      genCtx.Kind,
		Variables: genCtx.Variables,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generation request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call generation provider: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

		return "", fmt.Errorf("generation provider returned status %d: %s", resp.StatusCode, string(detail))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}

	g.logger.InfoContext(ctx, "Content generated", "kind", genCtx.Kind)

	return decoded.Content, nil
}
