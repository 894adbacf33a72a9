package notifier

import (
	"fmt"
	"hash/fnv"
	"html"
	"strings"
	"unicode/utf8"
)

// maxQuotedMessage keeps the quoted entry text well inside one Telegram message.
const maxQuotedMessage = 3000

func stageIcon(stage string) string {
	switch stage {
	case "transport":
		return "🚨"
	case "rate_limit":
		return "⏳"
	case "duplicate":
		return "♻️"
	default:
		return "⚠️"
	}
}

// formatAlert renders an alert as Telegram HTML.
func formatAlert(a Alert) string {
	msg := a.Message
	if utf8.RuneCountInString(msg) > maxQuotedMessage {
		msg = string([]rune(msg)[:maxQuotedMessage]) + "…"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Entry %s</b> (%s)\n", stageIcon(a.Stage), html.EscapeString(a.EntryID), html.EscapeString(a.Stage))
	fmt.Fprintf(&b, "Reason: %s\n", html.EscapeString(a.Reason))
	if !a.At.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", a.At.Format("2006-01-02 15:04"))
	}
	if msg != "" {
		fmt.Fprintf(&b, "<blockquote>%s</blockquote>", html.EscapeString(msg))
	}
	return b.String()
}

// dedupKey identifies repeated alerts for the same entry, stage and text.
// The reason is left out: duplicate reasons carry a relative age that
// changes every minute.
func dedupKey(a Alert) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(a.EntryID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(a.Stage))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(a.Message))
	return fmt.Sprintf("alert:%x", h.Sum64())
}
