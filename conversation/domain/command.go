package domain

import (
	"regexp"
	"strings"
	"unicode"
)

// CommandKind is the parsed intent of an inbound message.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandJoin
	CommandCancel
	CommandApprove
	CommandDeny
	CommandRegenerate
	CommandAgree
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoin:
		return "JOIN"
	case CommandCancel:
		return "CANCEL"
	case CommandApprove:
		return "APPROVE"
	case CommandDeny:
		return "DENY"
	case CommandRegenerate:
		return "REGENERATE"
	case CommandAgree:
		return "AGREE"
	default:
		return "NONE"
	}
}

// Command is parsed once at ingress and matched exhaustively by the state machine.
type Command struct {
	Kind CommandKind
	Args string
	Text string
}

var (
	agreementRe = regexp.MustCompile(`(?i)^\s*(AGREE|I AGREE|YES|YES I AGREE)\s*$`)

	keywords = map[string]CommandKind{
		"JOIN":       CommandJoin,
		"CANCEL":     CommandCancel,
		"APPROVE":    CommandApprove,
		"DENY":       CommandDeny,
		"REGENERATE": CommandRegenerate,
	}
)

// IsAgreement reports whether the whole message is a consent phrase.
func IsAgreement(text string) bool {
	return agreementRe.MatchString(text)
}

// ParseCommand recognizes a command token at the start of text, case-insensitively.
func ParseCommand(text string) Command {
	clean := strings.TrimSpace(text)
	cmd := Command{Kind: CommandNone, Text: clean}
	if clean == "" {
		return cmd
	}
	if IsAgreement(clean) {
		cmd.Kind = CommandAgree
		return cmd
	}

	token, rest := clean, ""
	if i := strings.IndexFunc(clean, unicode.IsSpace); i >= 0 {
		token, rest = clean[:i], clean[i:]
	}
	token = strings.TrimRight(strings.ToUpper(token), ".!,:")
	if kind, ok := keywords[token]; ok {
		cmd.Kind = kind
		cmd.Args = strings.TrimSpace(rest)
	}
	return cmd
}
