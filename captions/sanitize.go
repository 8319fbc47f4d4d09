package captions

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sanitize strips markup that generators occasionally emit and trims the result.
func Sanitize(text string) string {
	text = strings.TrimSpace(text)
	if !strings.ContainsAny(text, "<&") {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("script, style").Remove()
	return strings.TrimSpace(doc.Text())
}
