package utils

import (
	"strings"
	"unicode"
)

// NormalizeContact reduces a conversation identifier to the form stored on identities.
// "whatsapp:+1 (555) 010-2000" -> "+15550102000", "15550102000@s.whatsapp.net" -> "+15550102000".
// Identifiers that are not phone-like (chat ids) are returned trimmed.
func NormalizeContact(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "whatsapp:"), "sms:")
	if at := strings.Index(s, "@"); at >= 0 {
		s = s[:at]
		if colon := strings.Index(s, ":"); colon >= 0 {
			s = s[:colon]
		}
		if s != "" && s[0] != '+' {
			s = "+" + s
		}
	}

	var digits strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '+' && i == 0:
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return strings.TrimSpace(raw)
		}
	}
	out := digits.String()
	if out == "" || out == "+" {
		return strings.TrimSpace(raw)
	}
	return out
}

// IsWhatsAppJID reports whether the identifier addresses a WhatsApp user or group.
func IsWhatsAppJID(id string) bool {
	return strings.HasSuffix(id, "@s.whatsapp.net") || strings.HasSuffix(id, "@lid") || strings.HasSuffix(id, "@g.us")
}
