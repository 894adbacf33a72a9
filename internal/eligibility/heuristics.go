package eligibility

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Heuristic identifies one spam heuristic.
type Heuristic string

const (
	HeuristicCaps        Heuristic = "excessive_caps"
	HeuristicPunctuation Heuristic = "excessive_punctuation"
	HeuristicKeyword     Heuristic = "suspicious_keyword"
	HeuristicDigits      Heuristic = "excessive_digits"
	HeuristicRepetition  Heuristic = "character_repetition"
)

// Hit is a positive heuristic finding.
type Hit struct {
	Heuristic Heuristic
	Detail    string
}

var rePunctRun = regexp.MustCompile(`[!?.]{3,}`)

// CapsRatio returns the share of uppercase letters in text once URLs and
// whitespace are removed. ok is false when nothing remains.
func CapsRatio(text string) (ratio float64, ok bool) {
	rest := stripURLs(text)
	total, upper := 0, 0
	for _, r := range rest {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(upper) / float64(total), true
}

// ExcessiveCaps reports whether the uppercase share reaches threshold.
func ExcessiveCaps(text string, threshold float64) (Hit, bool) {
	ratio, ok := CapsRatio(text)
	if !ok || ratio < threshold {
		return Hit{}, false
	}
	return Hit{HeuristicCaps, fmt.Sprintf("excessive capitalization (%.0f%% uppercase)", ratio*100)}, true
}

// ExcessivePunctuation flags a run of three or more of ! ? . and otherwise a
// share of those marks above threshold. URLs are ignored.
func ExcessivePunctuation(text string, threshold float64) (Hit, bool) {
	rest := stripURLs(text)
	if run := rePunctRun.FindString(rest); run != "" {
		return Hit{HeuristicPunctuation, fmt.Sprintf("excessive punctuation (%q)", run)}, true
	}
	total := utf8.RuneCountInString(rest)
	if total == 0 {
		return Hit{}, false
	}
	marks := strings.Count(rest, "!") + strings.Count(rest, "?") + strings.Count(rest, ".")
	ratio := float64(marks) / float64(total)
	if ratio > threshold {
		return Hit{HeuristicPunctuation, fmt.Sprintf("excessive punctuation (%.0f%% of text)", ratio*100)}, true
	}
	return Hit{}, false
}

// SuspiciousKeywords returns one hit per phrase found (case-folded substring match).
func SuspiciousKeywords(text string, phrases []string) []Hit {
	low := strings.ToLower(text)
	var hits []Hit
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.Contains(low, p) {
			hits = append(hits, Hit{HeuristicKeyword, fmt.Sprintf("suspicious keyword %q", p)})
		}
	}
	return hits
}

// ExcessiveDigits flags a run of at least minRun consecutive digits.
func ExcessiveDigits(text string, minRun int) (Hit, bool) {
	if minRun <= 0 {
		return Hit{}, false
	}
	n, best := 0, 0
	for _, r := range text {
		if unicode.IsDigit(r) {
			n++
			best = max(best, n)
		} else {
			n = 0
		}
	}
	if best >= minRun {
		return Hit{HeuristicDigits, fmt.Sprintf("excessive digits (%d in a row)", best)}, true
	}
	return Hit{}, false
}

// CharacterRepetition flags any non-space character repeated minRun times in a row.
func CharacterRepetition(text string, minRun int) (Hit, bool) {
	if minRun <= 0 {
		return Hit{}, false
	}
	var prev rune = -1
	n := 0
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			n++
		} else {
			n = 1
		}
		prev = r
		if n >= minRun && !unicode.IsSpace(r) {
			return Hit{HeuristicRepetition, fmt.Sprintf("character %q repeated %d+ times", r, minRun)}, true
		}
	}
	return Hit{}, false
}
