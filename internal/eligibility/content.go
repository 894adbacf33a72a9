package eligibility

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Verdict is the content validator's outcome.
type Verdict struct {
	Valid          bool
	Reason         string // decisive failure, or a success summary
	FoundURLs      []string
	BlockedDomains []string
	Details        []string // every finding, pass or fail, for the audit log
}

// Policy configures the content validator.
type Policy struct {
	RequireKeyword   bool
	Keywords         []string
	BlockedDomains   []string // exact, parent-domain or glob pattern
	AllowedDomains   []string
	StrictDomains    bool // only AllowedDomains may appear
	MaxLength        int
	MaxURLs          int
	CapsRatio        float64
	PunctuationRatio float64
	DigitRun         int
	RepeatRun        int
	SpamPhrases      []string
	CustomRules      []CustomRule
}

const (
	DefaultMaxLength        = 4096
	DefaultMaxURLs          = 10
	DefaultCapsRatio        = 0.5
	DefaultPunctuationRatio = 0.10
	DefaultDigitRun         = 10
	DefaultRepeatRun        = 5
)

// DefaultBlockedDomains are common link shorteners that hide the real target.
var DefaultBlockedDomains = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd", "buff.ly", "cutt.ly", "shorturl.at", "rebrand.ly",
}

// DefaultSpamPhrases is the bilingual (German/English) suspicious phrase list.
var DefaultSpamPhrases = []string{
	"gratis", "kostenlos", "gewinnspiel", "jetzt kaufen", "nur heute", "sofort gewinnen", "geld verdienen",
	"free money", "click here", "winner", "act now", "limited time", "100% free", "casino", "crypto giveaway",
}

// DefaultPolicy returns the built-in policy: no keyword gate, shortener
// blocklist, no allow-list.
func DefaultPolicy() Policy {
	return Policy{
		BlockedDomains:   slices.Clone(DefaultBlockedDomains),
		MaxLength:        DefaultMaxLength,
		MaxURLs:          DefaultMaxURLs,
		CapsRatio:        DefaultCapsRatio,
		PunctuationRatio: DefaultPunctuationRatio,
		DigitRun:         DefaultDigitRun,
		RepeatRun:        DefaultRepeatRun,
		SpamPhrases:      slices.Clone(DefaultSpamPhrases),
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxLength <= 0 {
		p.MaxLength = DefaultMaxLength
	}
	if p.MaxURLs <= 0 {
		p.MaxURLs = DefaultMaxURLs
	}
	if p.CapsRatio <= 0 {
		p.CapsRatio = DefaultCapsRatio
	}
	if p.PunctuationRatio <= 0 {
		p.PunctuationRatio = DefaultPunctuationRatio
	}
	if p.DigitRun <= 0 {
		p.DigitRun = DefaultDigitRun
	}
	if p.RepeatRun <= 0 {
		p.RepeatRun = DefaultRepeatRun
	}
	return p
}

// Validator runs the content pipeline. It is immutable once built and safe
// for concurrent use.
type Validator struct {
	p       Policy
	blocked domainMatcher
	allowed domainMatcher
	rules   []compiledRule
}

// NewValidator compiles a policy. Zero numeric fields take their defaults;
// bad domain patterns or CEL expressions are errors.
func NewValidator(p Policy) (*Validator, error) {
	p = p.withDefaults()
	v := &Validator{p: p}
	var bad []string
	var b []string
	v.blocked, b = newDomainMatcher(p.BlockedDomains)
	bad = append(bad, b...)
	v.allowed, b = newDomainMatcher(p.AllowedDomains)
	bad = append(bad, b...)
	if len(bad) > 0 {
		return nil, fmt.Errorf("invalid domain patterns: %s", strings.Join(bad, ", "))
	}
	rules, err := compileRules(p.CustomRules)
	if err != nil {
		return nil, err
	}
	v.rules = rules
	return v, nil
}

// Policy returns the effective policy (defaults applied).
func (v *Validator) Policy() Policy { return v.p }

// Validate runs the ordered stages over message. The first failing stage
// decides Reason; URLs and blocked domains are collected up front so the
// verdict always carries them.
func (v *Validator) Validate(message string) Verdict {
	var vd Verdict
	vd.FoundURLs = ExtractURLs(message)
	domains := uniqueDomains(vd.FoundURLs)
	for _, d := range domains {
		if v.blocked.match(d) {
			vd.BlockedDomains = append(vd.BlockedDomains, d)
		}
	}

	fail := func(reason string) Verdict {
		vd.Valid = false
		vd.Reason = reason
		vd.Details = append(vd.Details, reason)
		return vd
	}

	// 1. length
	n := utf8.RuneCountInString(message)
	if n > v.p.MaxLength {
		return fail(fmt.Sprintf("message too long (%d > %d characters)", n, v.p.MaxLength))
	}
	vd.Details = append(vd.Details, fmt.Sprintf("length ok (%d characters)", n))

	// 2. required keyword
	if v.p.RequireKeyword && len(v.p.Keywords) > 0 {
		kw, ok := containsKeyword(message, v.p.Keywords)
		if !ok {
			return fail("required keyword missing")
		}
		vd.Details = append(vd.Details, fmt.Sprintf("keyword %q present", kw))
	}

	// 3 + 4. URL count
	vd.Details = append(vd.Details, fmt.Sprintf("%d urls found", len(vd.FoundURLs)))
	if len(vd.FoundURLs) > v.p.MaxURLs {
		return fail(fmt.Sprintf("too many urls (%d > %d)", len(vd.FoundURLs), v.p.MaxURLs))
	}

	if len(vd.FoundURLs) == 0 {
		// 5. heuristics are fatal on first hit
		hits := v.heuristics(message, true)
		if len(hits) > 0 {
			return fail(hits[0].Detail)
		}
		vd.Details = append(vd.Details, passedHeuristics(hits)...)
	} else {
		// 6. domains, then accumulated heuristics
		if len(vd.BlockedDomains) > 0 {
			return fail("blocked domain: " + strings.Join(vd.BlockedDomains, ", "))
		}
		if v.p.StrictDomains && !v.allowed.empty() {
			for _, d := range domains {
				if !v.allowed.match(d) {
					return fail(fmt.Sprintf("domain not in allow-list: %s", d))
				}
			}
			vd.Details = append(vd.Details, "all domains allow-listed")
		}
		hits := v.heuristics(message, false)
		kinds := map[Heuristic]bool{}
		var details []string
		for _, h := range hits {
			vd.Details = append(vd.Details, h.Detail)
			kinds[h.Heuristic] = true
			details = append(details, h.Detail)
		}
		if len(kinds) >= 2 {
			return fail("multiple spam indicators: " + strings.Join(details, "; "))
		}
		vd.Details = append(vd.Details, passedHeuristics(hits)...)
	}

	// 7. custom rules
	for _, r := range v.rules {
		hit, err := r.eval(message, n, vd.FoundURLs, domains)
		if err != nil {
			vd.Details = append(vd.Details, fmt.Sprintf("rule %s: %v", r.name, err))
			continue
		}
		if hit {
			return fail("custom rule matched: " + r.name)
		}
	}

	vd.Valid = true
	vd.Reason = fmt.Sprintf("message passed all checks (%d urls)", len(vd.FoundURLs))
	return vd
}

// heuristics runs every spam check; with stopFirst it returns at the first hit.
func (v *Validator) heuristics(text string, stopFirst bool) []Hit {
	var hits []Hit
	add := func(h Hit, ok bool) bool {
		if ok {
			hits = append(hits, h)
		}
		return ok && stopFirst
	}
	if add(ExcessiveCaps(text, v.p.CapsRatio)) {
		return hits
	}
	if add(ExcessivePunctuation(text, v.p.PunctuationRatio)) {
		return hits
	}
	for _, h := range SuspiciousKeywords(text, v.p.SpamPhrases) {
		if add(h, true) {
			return hits
		}
	}
	if add(ExcessiveDigits(text, v.p.DigitRun)) {
		return hits
	}
	add(CharacterRepetition(text, v.p.RepeatRun))
	return hits
}

var allHeuristics = []Heuristic{HeuristicCaps, HeuristicPunctuation, HeuristicKeyword, HeuristicDigits, HeuristicRepetition}

// passedHeuristics lists "<heuristic> ok" for every heuristic without a hit.
func passedHeuristics(hits []Hit) []string {
	out := make([]string, 0, len(allHeuristics))
	for _, h := range allHeuristics {
		if !slices.ContainsFunc(hits, func(x Hit) bool { return x.Heuristic == h }) {
			out = append(out, string(h)+" ok")
		}
	}
	return out
}

func containsKeyword(text string, keywords []string) (string, bool) {
	low := strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(low, k) {
			return k, true
		}
	}
	return "", false
}

func uniqueDomains(urls []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, u := range urls {
		d := DomainOf(u)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
