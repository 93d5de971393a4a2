package protocol

import "context"

// GenerationContext carries the tenant and entity hints a generator may use
// to ground its output.
type GenerationContext struct {
	SubaccountID string         `json:"subaccount_id"`
	Kind         string         `json:"kind"` // "email", "sms", "ad", "post"
	Variables    map[string]any `json:"variables,omitempty"`
}

// Generator is the pluggable content-generation capability behind the
// assistant endpoint. The canned implementation and any real provider sit
// behind the same contract, so callers never know which is wired in.
type Generator interface {
	Generate(ctx context.Context, prompt string, genCtx GenerationContext) (string, error)
}
