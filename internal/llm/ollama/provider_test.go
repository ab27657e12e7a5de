package ollama

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

func generateOK(response, doneReason string) string {
	b, _ := json.Marshal(map[string]any{
		"response":    response,
		"done":        true,
		"done_reason": doneReason,
	})
	return string(b)
}

func testProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(config.OllamaConfig{
		BaseURL: srv.URL,
		Model:   "llama3.1",
	}, 5*time.Second)
}

func TestComplete(t *testing.T) {
	var gotReq generateRequest
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(generateOK("```yaml\n- hosts: all\n```", "stop")))
	})

	out, err := p.Complete(context.Background(), models.CompletionRequest{
		Prompt:      "install nginx",
		MaxTokens:   2000,
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "```yaml\n- hosts: all\n```", out)

	assert.Equal(t, "llama3.1", gotReq.Model)
	assert.Equal(t, "install nginx", gotReq.Prompt)
	assert.False(t, gotReq.Stream)
	assert.Equal(t, float64(2000), gotReq.Options["num_predict"])
	assert.Equal(t, 0.3, gotReq.Options["temperature"])
}

func TestComplete_TruncatedOutput(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(generateOK("- hosts: al", "length")))
	})

	out, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, models.ErrTruncatedOutput)
	assert.Equal(t, "- hosts: al", out, "partial content is returned alongside the error")
}

func TestComplete_NonOKStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			p := testProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			})
			_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
			assert.ErrorIs(t, err, models.ErrProviderUnavailable)
		})
	}
}

func TestComplete_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	p := NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3.1"}, time.Second)

	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}
