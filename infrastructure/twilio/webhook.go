package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Inbound is the subset of a Twilio messaging webhook the engine uses.
type Inbound struct {
	From     string
	To       string
	Body     string
	NumMedia int
	MediaURL string
}

// ParseInbound reads webhook form values. The last attached media item wins.
func ParseInbound(value func(key string) string) Inbound {
	in := Inbound{
		From: strings.TrimSpace(value("From")),
		To:   strings.TrimSpace(value("To")),
		Body: strings.TrimSpace(value("Body")),
	}
	in.NumMedia, _ = strconv.Atoi(strings.TrimSpace(value("NumMedia")))
	if in.NumMedia > 0 {
		in.MediaURL = strings.TrimSpace(value(fmt.Sprintf("MediaUrl%d", in.NumMedia-1)))
	}
	return in
}

var silentCommand = regexp.MustCompile(`(?i)^(JOIN|CANCEL|AGREE|APPROVE|DENY|REGENERATE)\b`)

// AckText is the immediate reply for a webhook. Command messages are acknowledged silently.
func AckText(in Inbound) string {
	if silentCommand.MatchString(in.Body) {
		return ""
	}
	if in.MediaURL == "" {
		return ""
	}
	return "✅ Got it! Creating your preview 💇‍♀️"
}

type twimlMessage struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// TwiML renders a messaging response document, empty when text is empty.
func TwiML(text string) []byte {
	out, err := xml.Marshal(twimlMessage{Message: text})
	if err != nil {
		return []byte(xml.Header + "<Response></Response>")
	}
	return append([]byte(xml.Header), out...)
}

// ValidSignature checks X-Twilio-Signature: base64(HMAC-SHA1(authToken, url + sorted key/value pairs)).
func ValidSignature(authToken, fullURL string, params map[string]string, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
