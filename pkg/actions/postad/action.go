// Package postad implements the post_ad workflow action: it pushes ad
// content to an external platform webhook.
package postad

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/template"
)

var (
	ErrMissingPlatform   = errors.New("post_ad action requires a platform")
	ErrMissingWebhookURL = errors.New("post_ad action requires a webhook_url")
)

func NewFactory() *Factory {
	return &Factory{client: &http.Client{Timeout: 30 * time.Second}}
}

type Factory struct {
	client *http.Client
}

func (*Factory) ID() string {
	return models.NodeTypeActionPostAd
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config, f.client)
}

type Action struct {
	platform   string
	webhookURL string
	content    string
	client     *http.Client
}

func NewAction(config map[string]any, client *http.Client) (*Action, error) {
	platform, _ := config["platform"].(string)
	if platform == "" {
		return nil, ErrMissingPlatform
	}

	webhookURL, _ := config["webhook_url"].(string)
	if webhookURL == "" {
		return nil, ErrMissingWebhookURL
	}

	content, _ := config["content"].(string)

	return &Action{
		platform:   platform,
		webhookURL: webhookURL,
		content:    content,
		client:     client,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "post_ad", "platform", a.platform)

	content, err := template.RenderString(a.content, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render ad content: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"platform":        a.platform,
		"content":         content,
		"subaccount_id":   executionCtx.SubaccountID,
		"idempotency_key": executionCtx.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ad payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create ad request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", executionCtx.IdempotencyKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post ad: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

		return nil, fmt.Errorf("ad platform returned status %d: %s", resp.StatusCode, string(detail))
	}

	logger.InfoContext(ctx, "Ad posted", "status", resp.StatusCode)

	return map[string]any{
		"platform": a.platform,
		"status":   resp.StatusCode,
	}, nil
}
