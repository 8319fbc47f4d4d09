package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AzielCF/az-post/conversation/domain"
	tenants "github.com/AzielCF/az-post/tenants/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubImages struct{ urls []string }

func (s *stubImages) Load(_ context.Context, url string) ([]byte, string, error) {
	s.urls = append(s.urls, url)
	return []byte{0xff, 0xd8, 0xff}, "image/jpeg", nil
}

func TestParseCaption(t *testing.T) {
	out, err := parseCaption("```json\n{\"caption\":\" Soft curls \",\"hashtags\":[\"#curls\"],\"call_to_action\":\"Book now\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Soft curls", out.Caption)
	assert.Equal(t, []string{"#curls"}, out.Hashtags)
	assert.Equal(t, "Book now", out.CallToAction)

	out, err = parseCaption("Just a plain caption")
	require.NoError(t, err)
	assert.Equal(t, "Just a plain caption", out.Caption)

	_, err = parseCaption(`{"caption":""}`)
	assert.ErrorIs(t, err, ErrEmptyCaption)
}

func TestCaptionerGenerate(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)

		reply := []byte(`{"caption":"Sun-kissed balayage","hashtags":["#balayage","#summerhair"],"call_to_action":"Book today"}`)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": string(reply)}},
				},
				"finishReason": "STOP",
			}},
		})
	}))
	defer srv.Close()

	images := &stubImages{}
	c, err := NewCaptioner(context.Background(), Config{APIKey: "test", BaseURL: srv.URL + "/"}, images)
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), domain.CaptionRequest{
		ImageURL: "https://api.twilio.com/media/ME1",
		Note:     "balayage on long hair",
		Policy:   &tenants.TenantPolicy{Name: "Rush Salon", Tone: "playful"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Sun-kissed balayage", out.Caption)
	assert.Equal(t, []string{"#balayage", "#summerhair"}, out.Hashtags)
	assert.Equal(t, []string{"https://api.twilio.com/media/ME1"}, images.urls)
	assert.Contains(t, body, "balayage on long hair")
	assert.Contains(t, body, "Rush Salon")
	assert.Contains(t, body, "image/jpeg")
}

func TestNewCaptionerRequiresKey(t *testing.T) {
	_, err := NewCaptioner(context.Background(), Config{}, nil)
	assert.Error(t, err)
}
