package eligibility

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func mustValidator(t *testing.T, p Policy) *Validator {
	t.Helper()
	v, err := NewValidator(p)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestExtractURLs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"test zeitslot", nil},
		{"Go to www.Example.com.", []string{"https://www.example.com"}},
		{"(see https://x.org/a)", []string{"https://x.org/a"}},
		{"example.de/path?q=1 and HTTP://Foo.io", []string{"https://example.de/path?q=1", "http://foo.io"}},
		{"pi is 3.14", nil},
		{"anbei bericht.pdf und foto.jpg", nil},
		{"mail info@example.com", nil},
		{"siehe example.com/bericht.pdf!", []string{"https://example.com/bericht.pdf"}},
	}
	for _, tt := range tests {
		got := ExtractURLs(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ExtractURLs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"https://www.example.com/a?b#c": "example.com",
		"http://user@shop.example.org:8443/x": "shop.example.org",
		"https://bit.ly/abc":                  "bit.ly",
	}
	for in, want := range tests {
		if got := DomainOf(in); got != want {
			t.Fatalf("DomainOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHeuristics(t *testing.T) {
	t.Parallel()
	if _, ok := ExcessiveCaps("   ", 0.5); ok {
		t.Fatal("caps: empty remainder must not be suspicious")
	}
	if _, ok := ExcessiveCaps("HELLO https://example.com/lowercase world", 0.5); !ok {
		t.Fatal("caps: urls should be ignored")
	}
	if _, ok := ExcessivePunctuation("Wow!!! nice", 0.10); !ok {
		t.Fatal("punctuation: run of three should hit")
	}
	if _, ok := ExcessivePunctuation("a perfectly calm sentence", 0.10); ok {
		t.Fatal("punctuation: no marks should not hit")
	}
	if hits := SuspiciousKeywords("GRATIS und Kostenlos", DefaultSpamPhrases); len(hits) != 2 {
		t.Fatalf("keywords: got %d hits, want 2", len(hits))
	}
	if _, ok := ExcessiveDigits("call 0123456789", 10); !ok {
		t.Fatal("digits: ten in a row should hit")
	}
	if _, ok := ExcessiveDigits("id 123456789", 10); ok {
		t.Fatal("digits: nine in a row should not hit")
	}
	if _, ok := CharacterRepetition("heyyyyy", 5); !ok {
		t.Fatal("repetition: five y should hit")
	}
	if _, ok := CharacterRepetition("hey      there", 5); ok {
		t.Fatal("repetition: spaces should not count")
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	t.Parallel()
	v := mustValidator(t, DefaultPolicy())
	msgs := []string{
		"test zeitslot",
		"ABCDEFghij",
		"see https://bit.ly/x now",
		"gratis!!! https://example.com",
		strings.Repeat("ab", 3000),
	}
	for _, m := range msgs {
		a, b := v.Validate(m), v.Validate(m)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("Validate(%q) not idempotent:\n%+v\n%+v", m, a, b)
		}
	}
}

func TestValidateCapsWithoutURLs(t *testing.T) {
	t.Parallel()
	v := mustValidator(t, DefaultPolicy())
	vd := v.Validate("ABCDEFghij") // 60% uppercase
	if vd.Valid {
		t.Fatal("want invalid")
	}
	if !strings.Contains(vd.Reason, "capitalization") {
		t.Fatalf("reason = %q, want capitalization", vd.Reason)
	}
}

func TestValidateBlockedShortener(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	p.RequireKeyword = true
	p.Keywords = []string{"zeitslot"}

	for _, msg := range []string{
		"JETZT KLICKEN https://bit.ly/abc",
		"have a look at https://bit.ly/abc",
		"zeitslot news: https://bit.ly/abc",
	} {
		vd := mustValidator(t, p).Validate(msg)
		if vd.Valid {
			t.Fatalf("%q: want invalid", msg)
		}
		if !reflect.DeepEqual(vd.BlockedDomains, []string{"bit.ly"}) {
			t.Fatalf("%q: BlockedDomains = %v", msg, vd.BlockedDomains)
		}
	}
}

func TestValidateStages(t *testing.T) {
	t.Parallel()
	var many []string
	for i := 0; i < 11; i++ {
		many = append(many, fmt.Sprintf("https://site%d.com", i))
	}

	strict := DefaultPolicy()
	strict.StrictDomains = true
	strict.AllowedDomains = []string{"example.com"}

	keyword := DefaultPolicy()
	keyword.RequireKeyword = true
	keyword.Keywords = []string{"Zeitslot"}

	glob := DefaultPolicy()
	glob.BlockedDomains = []string{"*.spam.net"}

	tests := []struct {
		name   string
		policy Policy
		msg    string
		valid  bool
		reason string
	}{
		{"plain ok", DefaultPolicy(), "test zeitslot", true, "passed all checks"},
		{"too long", DefaultPolicy(), strings.Repeat("ab", 2049), false, "too long"},
		{"keyword missing", keyword, "hello there", false, "keyword"},
		{"keyword present", keyword, "hello zeitslot fans", true, ""},
		{"too many urls", DefaultPolicy(), strings.Join(many, " "), false, "too many urls"},
		{"strict allowed", strict, "docs at https://docs.example.com/x", true, ""},
		{"strict rejected", strict, "docs at https://other.org", false, "allow-list"},
		{"strict ignores file names", strict, "anbei bericht.pdf und foto.jpg", true, "(0 urls)"},
		{"single heuristic with url", DefaultPolicy(), "gratis tickets at https://example.com", true, ""},
		{"two heuristics with url", DefaultPolicy(), "gratis!!! https://example.com", false, "multiple spam indicators"},
		{"glob blocked", glob, "visit https://a.spam.net/x", false, "blocked domain"},
		{"keyword without url", DefaultPolicy(), "alles gratis hier", false, "suspicious keyword"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			vd := mustValidator(t, tt.policy).Validate(tt.msg)
			if vd.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v (reason %q)", vd.Valid, tt.valid, vd.Reason)
			}
			if tt.reason != "" && !strings.Contains(vd.Reason, tt.reason) {
				t.Fatalf("Reason = %q, want substring %q", vd.Reason, tt.reason)
			}
			if len(vd.Details) == 0 {
				t.Fatal("Details must not be empty")
			}
		})
	}
}

func TestValidateRecordsPassingHeuristics(t *testing.T) {
	t.Parallel()
	v := mustValidator(t, DefaultPolicy())

	vd := v.Validate("Guten Morgen")
	for _, h := range allHeuristics {
		want := string(h) + " ok"
		if !slices.Contains(vd.Details, want) {
			t.Fatalf("Details %v missing %q", vd.Details, want)
		}
	}

	vd = v.Validate("gratis tickets at https://example.com")
	if !vd.Valid {
		t.Fatalf("got %+v", vd)
	}
	if slices.Contains(vd.Details, string(HeuristicKeyword)+" ok") {
		t.Fatalf("keyword hit reported as ok: %v", vd.Details)
	}
	if !slices.Contains(vd.Details, string(HeuristicCaps)+" ok") {
		t.Fatalf("Details %v missing caps ok", vd.Details)
	}
}

func TestCustomRules(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	p.CustomRules = []CustomRule{
		{Name: "no-wallets", Expr: `text.contains("0x")`},
		{Name: "few-domains", Expr: `size(domains) > 2`},
	}
	v := mustValidator(t, p)

	vd := v.Validate("send to 0xabc please")
	if vd.Valid || vd.Reason != "custom rule matched: no-wallets" {
		t.Fatalf("got %+v", vd)
	}
	vd = v.Validate("https://a.com https://b.com https://c.com")
	if vd.Valid || !strings.Contains(vd.Reason, "few-domains") {
		t.Fatalf("got %+v", vd)
	}
	if vd := v.Validate("test zeitslot"); !vd.Valid {
		t.Fatalf("got %+v", vd)
	}

	p.CustomRules = []CustomRule{{Name: "shouting-giveaway", Expr: `text.lowerAscii().contains("giveaway")`}}
	v = mustValidator(t, p)
	if vd := v.Validate("Big GiveAway today"); vd.Valid {
		t.Fatalf("strings extension: got %+v", vd)
	}
}

func TestCustomRuleCompileErrors(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{`text.contains(`, `length + 1`} {
		p := DefaultPolicy()
		p.CustomRules = []CustomRule{{Name: "bad", Expr: expr}}
		_, err := NewValidator(p)
		if !errors.Is(err, ErrInvalidRuleExpr) {
			t.Fatalf("%q: err = %v, want ErrInvalidRuleExpr", expr, err)
		}
	}
}
