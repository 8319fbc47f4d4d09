package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

// Accept filters out our own messages, groups, broadcasts and status updates.
func Accept(info types.MessageInfo) bool {
	if info.IsFromMe || info.IsGroup || info.IsIncomingBroadcast() {
		return false
	}
	return info.Chat.Server == types.DefaultUserServer || info.Chat.Server == types.HiddenUserServer
}

// ConversationID prefers the phone-number JID so identities stored by phone resolve.
func ConversationID(info types.MessageInfo) string {
	if info.Chat.Server == types.HiddenUserServer && info.SenderAlt.Server == types.DefaultUserServer {
		return info.SenderAlt.ToNonAD().String()
	}
	return info.Chat.ToNonAD().String()
}

// Extract returns the message text (or image caption) and the image, if any.
func Extract(msg *waE2E.Message) (string, *waE2E.ImageMessage) {
	if msg == nil {
		return "", nil
	}
	if inner := msg.GetEphemeralMessage().GetMessage(); inner != nil {
		msg = inner
	}
	if inner := msg.GetViewOnceMessage().GetMessage(); inner != nil {
		msg = inner
	}
	if img := msg.GetImageMessage(); img != nil {
		return strings.TrimSpace(img.GetCaption()), img
	}
	if text := msg.GetConversation(); text != "" {
		return strings.TrimSpace(text), nil
	}
	return strings.TrimSpace(msg.GetExtendedTextMessage().GetText()), nil
}
