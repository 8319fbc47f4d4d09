package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func userJID(user string) types.JID {
	return types.NewJID(user, types.DefaultUserServer)
}

func TestAccept(t *testing.T) {
	direct := types.MessageInfo{MessageSource: types.MessageSource{Chat: userJID("15551234567"), Sender: userJID("15551234567")}}
	assert.True(t, Accept(direct))

	mine := direct
	mine.IsFromMe = true
	assert.False(t, Accept(mine))

	group := types.MessageInfo{MessageSource: types.MessageSource{
		Chat:    types.NewJID("120363000000000000", types.GroupServer),
		IsGroup: true,
	}}
	assert.False(t, Accept(group))

	status := types.MessageInfo{MessageSource: types.MessageSource{Chat: types.StatusBroadcastJID}}
	assert.False(t, Accept(status))
}

func TestConversationID(t *testing.T) {
	info := types.MessageInfo{MessageSource: types.MessageSource{Chat: userJID("15551234567")}}
	assert.Equal(t, "15551234567@s.whatsapp.net", ConversationID(info))

	hidden := types.MessageInfo{MessageSource: types.MessageSource{
		Chat:      types.NewJID("99887766", types.HiddenUserServer),
		SenderAlt: userJID("15551234567"),
	}}
	assert.Equal(t, "15551234567@s.whatsapp.net", ConversationID(hidden))
}

func TestExtract(t *testing.T) {
	text, img := Extract(&waE2E.Message{Conversation: proto.String("  APPROVE ")})
	assert.Equal(t, "APPROVE", text)
	assert.Nil(t, img)

	text, img = Extract(&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("regenerate")}})
	assert.Equal(t, "regenerate", text)
	assert.Nil(t, img)

	text, img = Extract(&waE2E.Message{EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{Caption: proto.String("fresh balayage")},
	}}})
	assert.Equal(t, "fresh balayage", text)
	require.NotNil(t, img)

	text, img = Extract(nil)
	assert.Empty(t, text)
	assert.Nil(t, img)
}

func TestParseRecipient(t *testing.T) {
	jid, err := ParseRecipient("whatsapp:+1 (555) 123-4567")
	require.NoError(t, err)
	assert.Equal(t, "15551234567@s.whatsapp.net", jid.String())

	jid, err = ParseRecipient("15551234567@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultUserServer, jid.Server)

	_, err = ParseRecipient("salon-owner")
	assert.Error(t, err)
}
