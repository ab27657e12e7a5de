package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmith/playbookpilot/internal/config"
	"github.com/opsmith/playbookpilot/pkg/models"
)

func messagesOK(text, stopReason string) string {
	resp := map[string]any{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": stopReason,
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func testProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(config.AnthropicConfig{
		BaseURL: srv.URL,
		APIKey:  "sk-ant-test",
		Model:   "claude-3-5-sonnet",
	}, 5*time.Second)
}

func TestComplete(t *testing.T) {
	var gotKey, gotVersion string
	var gotReq messagesRequest
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messagesOK("```yaml\n- hosts: all\n```", "end_turn")))
	})

	out, err := p.Complete(context.Background(), models.CompletionRequest{
		Prompt:      "install nginx",
		MaxTokens:   2000,
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "```yaml\n- hosts: all\n```", out)

	assert.Equal(t, "sk-ant-test", gotKey)
	assert.Equal(t, apiVersion, gotVersion)
	assert.Equal(t, "claude-3-5-sonnet", gotReq.Model)
	assert.Equal(t, 2000, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "install nginx", gotReq.Messages[0].Content)
}

func TestComplete_TruncatedOutput(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(messagesOK("- hosts: al", "max_tokens")))
	})

	out, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, models.ErrTruncatedOutput)
	assert.Equal(t, "- hosts: al", out, "partial content is returned alongside the error")
}

func TestComplete_ConcatenatesTextBlocks(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "- hosts: all\n"},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": "  tasks: []\n"}
			],
			"stop_reason": "end_turn"
		}`))
	})

	out, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "- hosts: all\n  tasks: []\n", out)
}

func TestComplete_StatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{status: http.StatusUnauthorized, wantErr: models.ErrProviderAuth},
		{status: http.StatusForbidden, wantErr: models.ErrProviderAuth},
		{status: http.StatusTooManyRequests, wantErr: models.ErrProviderQuota},
		{status: http.StatusInternalServerError, wantErr: models.ErrProviderUnavailable},
		{status: http.StatusBadGateway, wantErr: models.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"end_turn"}`))
	})
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}
