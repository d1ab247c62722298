package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern    = regexp.MustCompile(`-?\d{1,3}(?:[\s.,]\d{3})+(?:[.,]\d+)?|-?\d+(?:[.,]\d+)?`)
	thousandsDot     = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	thousandsComma   = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	codeTenPattern   = regexp.MustCompile(`(?i)^code\s*10$`)
	sizeNotAllowed   = regexp.MustCompile(`[^0-9A-Za-z/]`)
	nonDigitsPattern = regexp.MustCompile(`[^0-9]`)
)

// SanitizeQuantity keeps the digits of a raw quantity and clamps the result
// to [1, max]; anything outside falls back to "1".
func SanitizeQuantity(raw string, max int) string {
	digits := nonDigitsPattern.ReplaceAllString(raw, "")
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 || n > max {
		return "1"
	}
	return strconv.Itoa(n)
}

// ParseQuantity reports whether raw is already a quantity in (0, max].
func ParseQuantity(raw string, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 || n > max {
		return 0, false
	}
	return n, true
}

// ParsePrice extracts the first number of a price string ("19,99 €", "1 234.50").
func ParsePrice(raw string) (float64, bool) {
	line := strings.ReplaceAll(raw, "\u00A0", " ")
	token := numberPattern.FindString(strings.TrimSpace(line))
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(normalizeNumericToken(token), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NormalizePrice formats a price with two decimals and rejects values below min.
func NormalizePrice(raw *string, min float64) *string {
	if raw == nil {
		return nil
	}
	v, ok := ParsePrice(*raw)
	if !ok || v < min {
		return nil
	}
	return StringPtr(strconv.FormatFloat(v, 'f', 2, 64))
}

// EnsureValidSize keeps sizes like "38", "95BC" or "38/40" and maps
// "code 10" to "code10"; anything shorter than two characters yields fallback.
func EnsureValidSize(raw *string, fallback *string) *string {
	if raw == nil {
		return fallback
	}
	cleaned := strings.TrimSpace(*raw)
	if cleaned == "" {
		return fallback
	}
	if codeTenPattern.MatchString(cleaned) {
		return StringPtr("code10")
	}
	alnum := strings.ToUpper(sizeNotAllowed.ReplaceAllString(cleaned, ""))
	if len(alnum) >= 2 {
		return &alnum
	}
	return fallback
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if thousandsDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if thousandsComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && strings.Contains(compact, ".") {
		if strings.LastIndex(compact, ",") > strings.LastIndex(compact, ".") {
			compact = strings.ReplaceAll(compact, ".", "")
			return strings.ReplaceAll(compact, ",", ".")
		}
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
