// Package normalize provides pure normalization and similarity scoring for
// company names and registration identifiers. All functions are
// side-effect-free and safe for concurrent use.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Similarity thresholds and scores shared across the system.
const (
	// ContainmentScore is returned when one normalized name contains the
	// other. It captures "X" vs "X semiconductor division" without paying
	// full edit-distance cost, and deliberately outranks any edit-distance
	// score below an exact match.
	ContainmentScore = 0.95
)

// koreanAffixes are legal-entity markers stripped from company names.
// Both the spelled-out and abbreviated forms appear in the wild, sometimes
// as a prefix and sometimes as a suffix. The circled stock-company marker
// ㈜ is handled by NFKC folding, which expands it to (주) before stripping.
var koreanAffixes = []string{
	"주식회사",
	"(주)",
	"유한회사",
	"(유)",
	"유한책임회사",
	"합자회사",
	"(합)",
	"합명회사",
	"재단법인",
	"(재)",
	"사단법인",
	"(사)",
	"농업회사법인",
	"어업회사법인",
	"협동조합",
	"사회적협동조합",
}

// latinSuffixes are common corporate suffixes on romanized names. Matched
// case-insensitively against the trailing tokens of a name.
var latinSuffixes = []string{
	"incorporated",
	"corporation",
	"company",
	"limited",
	"inc",
	"corp",
	"ltd",
	"llc",
	"co",
}

// Name canonicalizes a company name for comparison: NFKC folding, trimming,
// legal-entity affix stripping, and whitespace collapsing. Returns "" for
// empty input. Idempotent: Name(Name(x)) == Name(x).
func Name(name string) string {
	s := strings.TrimSpace(norm.NFKC.String(name))
	if s == "" {
		return ""
	}

	for changed := true; changed; {
		changed = false
		s = strings.TrimSpace(s)
		for _, affix := range koreanAffixes {
			if rest, ok := strings.CutPrefix(s, affix); ok {
				s = strings.TrimSpace(rest)
				changed = true
			}
			if rest, ok := strings.CutSuffix(s, affix); ok {
				s = strings.TrimSpace(rest)
				changed = true
			}
		}
		s = trimLatinSuffix(s, &changed)
	}

	return collapseSpaces(s)
}

// trimLatinSuffix strips one trailing Latin corporate suffix, tolerating a
// trailing period and a separating comma ("Acme Widgets, Inc.").
func trimLatinSuffix(s string, changed *bool) string {
	trimmed := strings.TrimRight(s, ". ")
	lower := strings.ToLower(trimmed)
	for _, suffix := range latinSuffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		cut := len(trimmed) - len(suffix)
		if cut == 0 {
			// The whole name is the suffix token; leave it alone.
			continue
		}
		prev, _ := utf8DecodeLastRune(trimmed[:cut])
		if prev != ' ' && prev != ',' && prev != '.' {
			// Suffix is part of a legitimate token (e.g. "Bionic").
			continue
		}
		*changed = true
		return strings.TrimRight(strings.TrimSpace(trimmed[:cut]), ",")
	}
	return s
}

// Identifier strips separators from a registration number, keeping digits
// only. Returns "" for input with no digits, so identifier absence stays
// distinguishable from identifier mismatch.
func Identifier(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BRNO normalizes a business registration number (10 digits).
func BRNO(brno string) string {
	return Identifier(brno)
}

// CRNO normalizes a corporation registration number (13 digits).
func CRNO(crno string) string {
	return Identifier(crno)
}

// NameSimilarity scores the similarity of two company names in [0,1].
// Both names are normalized first; an empty side scores 0, an exact match
// 1.0, substring containment in either direction ContainmentScore, and
// anything else 1 - levenshtein/maxlen. Symmetric by construction.
func NameSimilarity(a, b string) float64 {
	na, nb := Name(a), Name(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return ContainmentScore
	}
	ra, rb := []rune(na), []rune(nb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1.0 - float64(Levenshtein(na, nb))/float64(maxLen)
}

// collapseSpaces reduces any run of whitespace to a single space.
func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// utf8DecodeLastRune returns the final rune of s, or space for empty input
// so boundary checks treat the start of string as a token boundary.
func utf8DecodeLastRune(s string) (rune, int) {
	if s == "" {
		return ' ', 0
	}
	runes := []rune(s)
	return runes[len(runes)-1], len(runes)
}
