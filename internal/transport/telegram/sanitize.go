package telegram

import (
	"regexp"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicyOnce sync.Once
	htmlPolicy     *bluemonday.Policy
)

// telegramPolicy allows only the tags the Bot API accepts in HTML parse mode.
func telegramPolicy() *bluemonday.Policy {
	htmlPolicyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote", "tg-spoiler")
		p.AllowAttrs("href").OnElements("a")
		p.AllowURLSchemes("http", "https", "tg", "mailto")
		p.RequireParseableURLs(true)
		p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w+#-]+$`)).OnElements("code")
		p.AllowAttrs("class").Matching(regexp.MustCompile(`^tg-spoiler$`)).OnElements("span")
		p.AllowAttrs("expandable").OnElements("blockquote")
		htmlPolicy = p
	})
	return htmlPolicy
}

// SanitizeHTML strips markup Telegram would reject (or that operators should
// not be able to inject) and escapes the rest.
func SanitizeHTML(s string) string {
	return telegramPolicy().Sanitize(s)
}
