package util

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinAnchorLength is the shortest digit run treated as a discovery anchor.
const MinAnchorLength = 5

func StripDiacritics(input string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, input)
	if err != nil {
		return input
	}
	return out
}

// NormalizeKey is the single key normalization used for references, model
// and color keys: diacritics stripped, ASCII alphanumerics kept, uppercased.
func NormalizeKey(input string) string {
	return asciiAlnumUpper(StripDiacritics(input))
}

func NormalizeReference(input string) string {
	return NormalizeKey(input)
}

// NormalizeSizeKey compares sizes without stripping diacritics first.
func NormalizeSizeKey(input string) string {
	return asciiAlnumUpper(input)
}

func asciiAlnumUpper(s string) string {
	out := strings.Builder{}
	out.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z':
			out.WriteRune(r)
		case r >= 'a' && r <= 'z':
			out.WriteRune(r - 'a' + 'A')
		}
	}
	return out.String()
}

func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func LongestDigitRun(s string) string {
	best, start := "", -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && isDigit(s[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start > len(best) {
			best = s[start:i]
		}
		start = -1
	}
	return best
}

// DigitAnchors returns the distinct maximal digit runs of at least
// MinAnchorLength characters, in order of first appearance.
func DigitAnchors(normText string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	start := -1
	for i := 0; i <= len(normText); i++ {
		if i < len(normText) && isDigit(normText[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= MinAnchorLength {
			run := normText[start:i]
			if _, ok := seen[run]; !ok {
				seen[run] = struct{}{}
				out = append(out, run)
			}
		}
		start = -1
	}
	return out
}

// ReferenceAnchor is the first six digits of a reference that opens with a
// run of at least six digits, otherwise its longest digit run.
func ReferenceAnchor(ref string) string {
	lead := 0
	for lead < len(ref) && isDigit(ref[lead]) {
		lead++
	}
	if lead >= 6 {
		return ref[:6]
	}
	return LongestDigitRun(ref)
}

// SplitReferenceAndSize handles references glued to a two character size
// ("123456738" with valid length 7 gives "1234567" and "38").
func SplitReferenceAndSize(raw string, lengths []int) (string, string) {
	cleaned := strings.Builder{}
	for _, r := range StripDiacritics(raw) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			cleaned.WriteRune(r)
		}
	}
	s := cleaned.String()
	for _, l := range lengths {
		if len(s) == l+2 {
			return s[:l], s[l:]
		}
	}
	for _, l := range lengths {
		if len(s) == l {
			return s, ""
		}
	}
	return "", ""
}

func ContainsInt(values []int, n int) bool {
	for _, v := range values {
		if v == n {
			return true
		}
	}
	return false
}
