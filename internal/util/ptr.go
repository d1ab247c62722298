package util

import "strings"

func StringPtr(s string) *string {
	return &s
}

func IntPtr(n int) *int {
	return &n
}

func FloatPtr(f float64) *float64 {
	return &f
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NonEmpty returns nil for blank strings and a trimmed copy otherwise.
func NonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func NonEmptyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return NonEmpty(*s)
}
