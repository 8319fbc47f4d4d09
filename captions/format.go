// Package captions composes and normalizes post captions for the two publishing platforms.
package captions

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Spacer is the zero-width line used where the primary platform would otherwise collapse blank lines.
const Spacer = "\u200B"

const DefaultMaxLength = 2200

type lineClass int

const (
	classBody lineClass = iota
	classCredit
	classLink
	classHashtag
	classCTA
)

var (
	creditRe = regexp.MustCompile(`^Styled by `)
	linkRe   = regexp.MustCompile(`^IG:\s`)
	ctaRe    = regexp.MustCompile(`(?i)^(book|schedule)\b`)
)

func classify(line string) lineClass {
	switch {
	case creditRe.MatchString(line):
		return classCredit
	case linkRe.MatchString(line):
		return classLink
	case strings.HasPrefix(line, "#"):
		return classHashtag
	case isEmphasized(line) || ctaRe.MatchString(line):
		return classCTA
	default:
		return classBody
	}
}

func isEmphasized(line string) bool {
	return len(line) >= 2 && strings.HasPrefix(line, "_") && strings.HasSuffix(line, "_")
}

// needsBlank reports whether a block boundary sits between prev and cur.
func needsBlank(prev, cur lineClass) bool {
	if prev == classHashtag && cur != classHashtag {
		return true
	}
	switch cur {
	case classCredit:
		return true
	case classLink:
		return prev != classCredit
	case classHashtag:
		return prev != classHashtag
	case classBody:
		return prev == classCredit || prev == classLink
	}
	return false
}

func isBlank(line string) bool {
	t := strings.TrimSpace(strings.ReplaceAll(line, Spacer, ""))
	return t == ""
}

// Normalize enforces one blank line between distinct caption blocks, collapses runs of blank lines,
// and trims leading and trailing blank lines. Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	type item struct {
		line        string
		blankBefore bool
	}

	var items []item
	pendingBlank := false
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		ln := strings.TrimRight(raw, " \t\r")
		if isBlank(ln) {
			pendingBlank = len(items) > 0
			continue
		}
		items = append(items, item{line: ln, blankBefore: pendingBlank})
		pendingBlank = false
	}

	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
			if it.blankBefore || needsBlank(classify(items[i-1].line), classify(it.line)) {
				b.WriteByte('\n')
			}
		}
		b.WriteString(it.line)
	}
	return b.String()
}

// Parts are the inputs of a base caption.
type Parts struct {
	Caption    string
	CreditName string
	Hashtags   []string
	CTA        string
	BookingURL string
}

// Compose assembles body, credit, hashtags, call to action and booking link in that order.
func Compose(p Parts) string {
	var blocks []string
	if body := strings.TrimSpace(p.Caption); body != "" {
		blocks = append(blocks, body)
	}
	if name := strings.TrimSpace(p.CreditName); name != "" {
		blocks = append(blocks, "Styled by "+name)
	}
	if tags := JoinHashtags(p.Hashtags); tags != "" {
		blocks = append(blocks, tags)
	}
	if cta := strings.TrimSpace(p.CTA); cta != "" {
		blocks = append(blocks, cta)
	}
	if u := strings.TrimSpace(p.BookingURL); u != "" {
		blocks = append(blocks, "Book: "+u)
	}
	return Normalize(strings.Join(blocks, "\n\n"))
}

// JoinHashtags renders tags on one line, adding a missing '#' and dropping duplicates.
func JoinHashtags(tags []string) string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		for _, field := range strings.Fields(t) {
			tag := "#" + strings.TrimLeft(field, "#")
			if tag == "#" {
				continue
			}
			key := strings.ToLower(tag)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tag)
		}
	}
	return strings.Join(out, " ")
}

// MergeHashtags returns generated tags followed by tenant defaults, without duplicates.
func MergeHashtags(generated, defaults []string) []string {
	joined := JoinHashtags(append(append([]string{}, generated...), defaults...))
	if joined == "" {
		return nil
	}
	return strings.Fields(joined)
}

// Truncate cuts text to at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}
