package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"
)

var ErrEmptyCaption = errors.New("openai returned an empty caption")

// Captioner is the OpenAI alternative to the Gemini captioner.
type Captioner struct {
	client openai.Client
	model  string
	images domain.ImageLoader
}

func NewCaptioner(cfg Config, images domain.ImageLoader) (*Captioner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai captioner requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Captioner{client: newClient(cfg), model: cfg.Model, images: images}, nil
}

var captionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"caption":        map[string]any{"type": "string"},
		"hashtags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"call_to_action": map[string]any{"type": "string"},
	},
	"required":             []string{"caption", "hashtags", "call_to_action"},
	"additionalProperties": false,
}

func (c *Captioner) Generate(ctx context.Context, req domain.CaptionRequest) (domain.CaptionResult, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Prompt())}

	if req.ImageURL != "" && c.images != nil {
		data, mimeType, err := c.images.Load(ctx, req.ImageURL)
		if err != nil {
			return domain.CaptionResult{}, fmt.Errorf("load image for caption: %w", err)
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "salon_caption",
					Schema: any(captionSchema),
					Strict: openai.Bool(true),
				},
			},
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.CaptionResult{}, err
	}
	if len(completion.Choices) == 0 {
		return domain.CaptionResult{}, ErrEmptyCaption
	}

	var out domain.CaptionResult
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &out); err != nil {
		return domain.CaptionResult{}, fmt.Errorf("decode caption: %w", err)
	}
	out.Caption = strings.TrimSpace(out.Caption)
	if out.Caption == "" {
		return domain.CaptionResult{}, ErrEmptyCaption
	}

	logrus.WithFields(logrus.Fields{
		"model":         c.model,
		"input_tokens":  completion.Usage.PromptTokens,
		"output_tokens": completion.Usage.CompletionTokens,
	}).Debug("[OPENAI] caption drafted")
	return out, nil
}
