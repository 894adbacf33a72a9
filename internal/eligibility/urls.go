package eligibility

import (
	"net"
	"strings"

	"github.com/gobwas/glob"
	"mvdan.cc/xurls/v2"
)

// reURL finds explicit links and bare domains with a known TLD, so file
// names like report.pdf are not links.
var reURL = xurls.Relaxed()

const trailingURLPunct = `.,;:!?)]}'"»…`

// ExtractURLs returns every web link in text, trailing punctuation
// stripped, scheme defaulted to https:// and lower-cased. Order follows the
// text. E-mail addresses and scheme-only forms (mailto:, tel:) are skipped.
func ExtractURLs(text string) []string {
	raw := reURL.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimRight(u, trailingURLPunct)
		if u == "" {
			continue
		}
		u = strings.ToLower(u)
		if !strings.Contains(u, "://") {
			if strings.Contains(u, "@") || hasOpaqueScheme(u) {
				continue
			}
			u = "https://" + u
		}
		out = append(out, u)
	}
	return out
}

func hasOpaqueScheme(u string) bool {
	for _, s := range xurls.SchemesNoAuthority {
		if strings.HasPrefix(u, s+":") {
			return true
		}
	}
	return false
}

// stripURLs removes every URL-like token from text.
func stripURLs(text string) string {
	return reURL.ReplaceAllString(text, " ")
}

// DomainOf derives the host of a URL: scheme, "www.", path, query, fragment
// and port are dropped.
func DomainOf(u string) string {
	d := strings.ToLower(strings.TrimSpace(u))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if h, _, err := net.SplitHostPort(d); err == nil {
		d = h
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, ".")
}

// domainMatcher matches a domain against a list of entries. Plain entries
// match exactly or as a parent domain (suffix on a label boundary); entries
// containing '*' or '?' are glob patterns over dot-separated labels.
type domainMatcher struct {
	plain []string
	globs []glob.Glob
}

func newDomainMatcher(entries []string) (domainMatcher, []string) {
	var m domainMatcher
	var bad []string
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if strings.ContainsAny(e, "*?") {
			g, err := glob.Compile(e, '.')
			if err != nil {
				bad = append(bad, e)
				continue
			}
			m.globs = append(m.globs, g)
			continue
		}
		m.plain = append(m.plain, DomainOf(e))
	}
	return m, bad
}

func (m domainMatcher) empty() bool { return len(m.plain) == 0 && len(m.globs) == 0 }

func (m domainMatcher) match(domain string) bool {
	for _, p := range m.plain {
		if domain == p || strings.HasSuffix(domain, "."+p) {
			return true
		}
	}
	for _, g := range m.globs {
		if g.Match(domain) {
			return true
		}
	}
	return false
}
