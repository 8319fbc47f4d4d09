package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/AzielCF/az-post/pkg/utils"
	"github.com/sirupsen/logrus"
)

var ErrNoChannel = errors.New("no messaging channel can reach recipient")

// Sender is a single delivery channel.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Router sends WhatsApp JIDs through the paired device and phone numbers (plain or
// "whatsapp:" prefixed) through Twilio. Plain numbers fall back to the device when
// Twilio is not configured.
type Router struct {
	WhatsApp Sender
	Twilio   Sender
}

func (r *Router) SendText(ctx context.Context, to, text string) error {
	to = strings.TrimSpace(to)
	switch {
	case utils.IsWhatsAppJID(to):
		if r.WhatsApp != nil {
			return r.WhatsApp.SendText(ctx, to, text)
		}
	case strings.HasPrefix(to, "whatsapp:"):
		if r.Twilio != nil {
			return r.Twilio.SendText(ctx, to, text)
		}
		if r.WhatsApp != nil {
			return r.WhatsApp.SendText(ctx, to, text)
		}
	case strings.HasPrefix(utils.NormalizeContact(to), "+"):
		if r.Twilio != nil {
			return r.Twilio.SendText(ctx, to, text)
		}
		if r.WhatsApp != nil {
			return r.WhatsApp.SendText(ctx, to, text)
		}
	}
	logrus.Warnf("[ROUTER] no channel for recipient %q", to)
	return ErrNoChannel
}
