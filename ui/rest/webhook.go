package rest

import (
	conversation "github.com/AzielCF/az-post/conversation/domain"
	"github.com/AzielCF/az-post/infrastructure/twilio"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// Submitter queues an inbound message for the conversation machine.
type Submitter interface {
	Submit(ev conversation.InboundEvent) bool
}

type TwilioWebhook struct {
	Inbound Submitter
	// AuthToken enables X-Twilio-Signature validation when set.
	AuthToken string
}

func InitRestWebhooks(app fiber.Router, inbound Submitter, authToken string) TwilioWebhook {
	handler := TwilioWebhook{Inbound: inbound, AuthToken: authToken}
	app.Post("/webhooks/twilio", handler.Receive)
	return handler
}

func formParams(args *fasthttp.Args) map[string]string {
	params := make(map[string]string, args.Len())
	args.VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})
	return params
}

// Receive acknowledges right away; the message itself is processed by the worker pool.
func (h *TwilioWebhook) Receive(c *fiber.Ctx) error {
	if h.AuthToken != "" {
		fullURL := c.BaseURL() + c.OriginalURL()
		params := formParams(c.Request().PostArgs())
		if !twilio.ValidSignature(h.AuthToken, fullURL, params, c.Get("X-Twilio-Signature")) {
			logrus.Warnf("[TWILIO] rejected webhook with invalid signature from %s", c.IP())
			return c.SendStatus(fiber.StatusForbidden)
		}
	}

	in := twilio.ParseInbound(func(key string) string { return c.FormValue(key) })
	reply := twilio.AckText(in)
	if in.From == "" {
		reply = ""
	} else if !h.Inbound.Submit(conversation.InboundEvent{
		ConversationID: in.From,
		Text:           in.Body,
		MediaURL:       in.MediaURL,
		Channel:        "twilio",
	}) {
		reply = "We're a little busy right now. Please send that again in a minute."
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextXMLCharsetUTF8)
	return c.Send(twilio.TwiML(reply))
}
