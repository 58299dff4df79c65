package channel

import (
	"strings"
	"unicode/utf8"
)

// AllowList filters senders by id. The zero value allows everyone.
type AllowList map[string]struct{}

// NewAllowList normalizes allow_from values into a lookup set.
func NewAllowList(allowFrom []string) AllowList {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(AllowList, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// Allows reports whether sender may trigger commands.
func (a AllowList) Allows(senderID string) bool {
	if len(a) == 0 {
		return true
	}

	_, ok := a[strings.TrimSpace(senderID)]
	return ok
}

const previewLimit = 240

// PreviewText returns a bounded log-safe preview of message text. The cut
// never splits a UTF-8 sequence.
func PreviewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= previewLimit {
		return trimmed
	}

	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut] + "..."
}
