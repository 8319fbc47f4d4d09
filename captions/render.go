package captions

import (
	"regexp"
	"strings"
)

const DefaultSecondaryCTA = "Book via link in bio."

var (
	bookingLineRe = regexp.MustCompile(`(?i)^\s*Book:\s*https?://`)
	rawURLRe      = regexp.MustCompile(`https?://\S+`)
)

func cleanHandle(handle string) string {
	return strings.TrimLeft(strings.TrimSpace(handle), "@")
}

// setCredit replaces the existing credit line, or inserts one after the first line.
func setCredit(caption, credit string) string {
	if strings.TrimSpace(caption) == "" {
		return credit
	}
	lines := strings.Split(caption, "\n")
	for i, l := range lines {
		if creditRe.MatchString(l) {
			lines[i] = credit
			return strings.Join(lines, "\n")
		}
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[0], credit)
	out = append(out, lines[1:]...)
	return strings.Join(out, "\n")
}

func insertLinkUnderCredit(caption, handle string) string {
	handle = cleanHandle(handle)
	if handle == "" {
		return caption
	}
	link := "IG: https://instagram.com/" + handle
	lines := strings.Split(caption, "\n")
	for i, l := range lines {
		if !creditRe.MatchString(l) {
			continue
		}
		if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == link {
			return caption
		}
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:i+1]...)
		out = append(out, link)
		out = append(out, lines[i+1:]...)
		return strings.Join(out, "\n")
	}
	return caption + "\n" + link
}

func creditName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown Stylist"
	}
	return name
}

// RenderPrimary builds the page caption: credit by display name with the profile link directly
// beneath it, blank lines replaced with the spacer.
func RenderPrimary(base, name, handle string) string {
	c := setCredit(base, "Styled by "+creditName(name))
	c = insertLinkUnderCredit(c, handle)
	c = Normalize(c)

	lines := strings.Split(c, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = Spacer
		}
	}
	return strings.Join(lines, "\n")
}

// RenderSecondary builds the feed caption: credit by @handle (display name when unknown) and no raw
// links. When a link had to be removed the fixed call to action is appended.
func RenderSecondary(base, name, handle, cta string) string {
	if strings.TrimSpace(cta) == "" {
		cta = DefaultSecondaryCTA
	}

	var c string
	if h := cleanHandle(handle); h != "" {
		c = setCredit(base, "Styled by @"+h)
	} else {
		c = setCredit(base, "Styled by "+creditName(name))
	}

	removed := false
	var kept []string
	for _, l := range strings.Split(c, "\n") {
		trimmed := strings.TrimSpace(l)
		if linkRe.MatchString(trimmed) {
			continue
		}
		if bookingLineRe.MatchString(trimmed) {
			removed = true
			continue
		}
		if rawURLRe.MatchString(l) {
			removed = true
			l = strings.TrimSpace(strings.Join(strings.Fields(rawURLRe.ReplaceAllString(l, "")), " "))
			if l == "" {
				continue
			}
		}
		kept = append(kept, l)
	}

	out := strings.Join(kept, "\n")
	if removed && !strings.Contains(out, cta) {
		out += "\n\n" + cta
	}
	return Normalize(out)
}
