package assist

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapflow/reapflow/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestCannedGenerator_PerKind(t *testing.T) {
	generator := NewCannedGenerator()
	ctx := context.Background()

	email, err := generator.Generate(ctx, "spring sale", protocol.GenerationContext{Kind: "email"})
	require.NoError(t, err)
	assert.Contains(t, email, "Subject: spring sale")

	sms, err := generator.Generate(ctx, "spring sale", protocol.GenerationContext{Kind: "sms"})
	require.NoError(t, err)
	assert.Contains(t, sms, "spring sale")
	assert.Contains(t, sms, "STOP")
}

func TestCannedGenerator_UnknownKindEchoesPrompt(t *testing.T) {
	generator := NewCannedGenerator()

	content, err := generator.Generate(context.Background(), "open house", protocol.GenerationContext{Kind: "billboard"})
	require.NoError(t, err)
	assert.Equal(t, "open house", content)
}

func TestCannedGenerator_EmptyPromptFallsBack(t *testing.T) {
	generator := NewCannedGenerator()

	content, err := generator.Generate(context.Background(), "  ", protocol.GenerationContext{Kind: "ad"})
	require.NoError(t, err)
	assert.Contains(t, content, "your business")
}

func TestHTTPGenerator_Generate(t *testing.T) {
	var captured generateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(generateResponse{Content: "Generated copy"})
	}))
	defer server.Close()

	generator := NewHTTPGenerator(server.URL, "secret", testLogger())

	content, err := generator.Generate(context.Background(), "spring sale", protocol.GenerationContext{
		Kind:      "email",
		Variables: map[string]any{"tone": "friendly"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Generated copy", content)
	assert.Equal(t, "spring sale", captured.Prompt)
	assert.Equal(t, "email", captured.Kind)
	assert.Equal(t, "friendly", captured.Variables["tone"])
}

func TestHTTPGenerator_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	generator := NewHTTPGenerator(server.URL, "secret", testLogger())

	_, err := generator.Generate(context.Background(), "spring sale", protocol.GenerationContext{Kind: "email"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}
