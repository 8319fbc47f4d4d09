package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubImages struct{}

func (stubImages) Load(context.Context, string) ([]byte, string, error) {
	return []byte("png-bytes"), "image/png", nil
}

func newStubServer(t *testing.T, handler http.HandlerFunc) Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return Config{APIKey: "sk-test", BaseURL: srv.URL + "/"}
}

func TestCaptionerGenerate(t *testing.T) {
	var request map[string]any
	cfg := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &request))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant",
				"content": "{\"caption\":\"Glossy copper waves\",\"hashtags\":[\"#copperhair\"],\"call_to_action\":\"Book your color\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	c, err := NewCaptioner(cfg, stubImages{})
	require.NoError(t, err)
	out, err := c.Generate(context.Background(), domain.CaptionRequest{ImageURL: "https://x/y.png", Note: "copper"})
	require.NoError(t, err)
	assert.Equal(t, domain.CaptionResult{
		Caption:      "Glossy copper waves",
		Hashtags:     []string{"#copperhair"},
		CallToAction: "Book your color",
	}, out)

	assert.Equal(t, DefaultModel, request["model"])
	raw, _ := json.Marshal(request["messages"])
	assert.Contains(t, string(raw), "data:image/png;base64,")
}

func TestModeratorCheck(t *testing.T) {
	cfg := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/moderations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "modr-1", "model": "omni-moderation-latest",
			"results": [
				{"flagged": false, "categories": {"harassment": false, "violence": false}, "category_scores": {}},
				{"flagged": true, "categories": {"harassment": true, "violence": false}, "category_scores": {}}
			]
		}`))
	})

	res, err := NewModerator(cfg).Check(context.Background(), "Nice cut", "something rude")
	require.NoError(t, err)
	assert.False(t, res.Safe)
	assert.Equal(t, []string{"harassment"}, res.Categories)
}

func TestModeratorSkipsEmptyInput(t *testing.T) {
	res, err := NewModerator(Config{APIKey: "unused", BaseURL: "http://127.0.0.1:1/"}).Check(context.Background(), " ", "")
	require.NoError(t, err)
	assert.True(t, res.Safe)
}

func TestPermissive(t *testing.T) {
	res, err := Permissive{}.Check(context.Background(), "anything", "at all")
	require.NoError(t, err)
	assert.True(t, res.Safe)
}
