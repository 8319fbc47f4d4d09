package domain

import (
	"context"
	"fmt"
	"strings"
)

// ImageLoader fetches the bytes of an inbound photo, handling provider auth.
type ImageLoader interface {
	Load(ctx context.Context, url string) ([]byte, string, error)
}

const captionInstructions = `Return a JSON object with:
- "caption": one to three warm sentences describing the look. No hashtags, no links, no emojis at the start.
- "hashtags": three to eight relevant hashtags, each starting with #.
- "call_to_action": one short sentence inviting clients to book.`

// Prompt renders the generator instructions for this request.
func (r CaptionRequest) Prompt() string {
	var b strings.Builder
	b.WriteString("You write social media captions for a hair salon.\n")
	if r.Policy != nil {
		if r.Policy.Name != "" {
			fmt.Fprintf(&b, "Salon: %s\n", r.Policy.Name)
		}
		if r.Policy.Tone != "" {
			fmt.Fprintf(&b, "Tone: %s\n", r.Policy.Tone)
		}
	}
	if r.Contributor != nil {
		fmt.Fprintf(&b, "Stylist: %s\n", r.Contributor.DisplayName())
	}
	if note := strings.TrimSpace(r.Note); note != "" {
		fmt.Fprintf(&b, "Stylist notes: %s\n", note)
	}
	b.WriteString("\n")
	b.WriteString(captionInstructions)
	return b.String()
}
