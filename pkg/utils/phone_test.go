package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContact(t *testing.T) {
	cases := map[string]string{
		"+15550102000":                  "+15550102000",
		"whatsapp:+15550102000":         "+15550102000",
		"+1 (555) 010-2000":             "+15550102000",
		"15550102000@s.whatsapp.net":    "+15550102000",
		"15550102000:12@s.whatsapp.net": "+15550102000",
		"  telegram-chat-991  ":         "telegram-chat-991",
		"":                              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeContact(in), "input %q", in)
	}
}

func TestIsWhatsAppJID(t *testing.T) {
	assert.True(t, IsWhatsAppJID("15550102000@s.whatsapp.net"))
	assert.False(t, IsWhatsAppJID("+15550102000"))
}
