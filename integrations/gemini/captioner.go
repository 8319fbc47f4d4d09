package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

var ErrEmptyCaption = errors.New("gemini returned an empty caption")

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Captioner drafts captions from the photo and the stylist's note.
type Captioner struct {
	client *genai.Client
	model  string
	images domain.ImageLoader
}

func NewCaptioner(ctx context.Context, cfg Config, images domain.ImageLoader) (*Captioner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini captioner requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Captioner{client: client, model: cfg.Model, images: images}, nil
}

var captionSchema = &genai.Schema{
	Type: "object",
	Properties: map[string]*genai.Schema{
		"caption": {
			Type:        "string",
			Description: "One to three sentences describing the look, without hashtags or links",
		},
		"hashtags": {
			Type:        "array",
			Items:       &genai.Schema{Type: "string"},
			Description: "Three to eight hashtags, each starting with #",
		},
		"call_to_action": {
			Type:        "string",
			Description: "One short sentence inviting clients to book",
		},
	},
	Required:         []string{"caption", "hashtags", "call_to_action"},
	PropertyOrdering: []string{"caption", "hashtags", "call_to_action"},
}

func (c *Captioner) Generate(ctx context.Context, req domain.CaptionRequest) (domain.CaptionResult, error) {
	parts := []*genai.Part{{Text: req.Prompt()}}

	if req.ImageURL != "" && c.images != nil {
		data, mimeType, err := c.images.Load(ctx, req.ImageURL)
		if err != nil {
			return domain.CaptionResult{}, fmt.Errorf("load image for caption: %w", err)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}})
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: captionSchema,
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, genConfig)
	if err != nil {
		return domain.CaptionResult{}, err
	}
	if result == nil {
		return domain.CaptionResult{}, ErrEmptyCaption
	}

	out, err := parseCaption(result.Text())
	if err != nil {
		return domain.CaptionResult{}, err
	}
	logrus.Debugf("[GEMINI] caption drafted (%d chars, %d hashtags)", len(out.Caption), len(out.Hashtags))
	return out, nil
}

// parseCaption decodes the structured reply. A reply that is not JSON is used as the caption itself.
func parseCaption(raw string) (domain.CaptionResult, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")
	raw = strings.TrimSpace(raw)

	var out domain.CaptionResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logrus.WithError(err).Warn("[GEMINI] failed to parse structured caption, using raw text")
		out = domain.CaptionResult{Caption: raw}
	}
	out.Caption = strings.TrimSpace(out.Caption)
	if out.Caption == "" {
		return domain.CaptionResult{}, ErrEmptyCaption
	}
	return out, nil
}
