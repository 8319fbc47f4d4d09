package openai

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"
)

// Moderator screens the generated caption and the stylist's note.
type Moderator struct {
	client openai.Client
}

func NewModerator(cfg Config) *Moderator {
	return &Moderator{client: newClient(cfg)}
}

func (m *Moderator) Check(ctx context.Context, caption, note string) (domain.ModerationResult, error) {
	inputs := make([]string, 0, 2)
	for _, s := range []string{caption, note} {
		if strings.TrimSpace(s) != "" {
			inputs = append(inputs, s)
		}
	}
	if len(inputs) == 0 {
		return domain.ModerationResult{Safe: true}, nil
	}

	resp, err := m.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfStringArray: inputs},
		Model: openai.ModerationModelOmniModerationLatest,
	})
	if err != nil {
		return domain.ModerationResult{}, err
	}

	result := domain.ModerationResult{Safe: true}
	seen := map[string]bool{}
	for _, r := range resp.Results {
		if !r.Flagged {
			continue
		}
		result.Safe = false
		var categories map[string]bool
		if err := json.Unmarshal([]byte(r.Categories.RawJSON()), &categories); err == nil {
			for name, hit := range categories {
				if hit && !seen[name] {
					seen[name] = true
					result.Categories = append(result.Categories, name)
				}
			}
		}
	}
	sort.Strings(result.Categories)
	if !result.Safe {
		logrus.Warnf("[OPENAI] moderation flagged content: %v", result.Categories)
	}
	return result, nil
}

// Permissive is the moderator used when no OpenAI key is configured: everything passes.
type Permissive struct{}

func (Permissive) Check(context.Context, string, string) (domain.ModerationResult, error) {
	return domain.ModerationResult{Safe: true}, nil
}
