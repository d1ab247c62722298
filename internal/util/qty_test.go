package util

import "testing"

func TestSanitizeQuantity(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "3", want: "3"},
		{name: "zero falls back", input: "0", want: "1"},
		{name: "empty falls back", input: "", want: "1"},
		{name: "with unit", input: "2 paires", want: "2"},
		{name: "above max", input: "12", want: "1"},
		{name: "at max", input: "10", want: "10"},
		{name: "negative sign dropped", input: "-4", want: "4"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeQuantity(tc.input, 10); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	cases := []struct {
		name  string
		input *string
		want  *string
	}{
		{name: "nil", input: nil, want: nil},
		{name: "decimal comma", input: StringPtr("19,99"), want: StringPtr("19.99")},
		{name: "currency suffix", input: StringPtr("24.5 €"), want: StringPtr("24.50")},
		{name: "thousands space", input: StringPtr("1 234,50"), want: StringPtr("1234.50")},
		{name: "below minimum", input: StringPtr("9.99"), want: nil},
		{name: "garbage", input: StringPtr("n/a"), want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizePrice(tc.input, 10)
			if (got == nil) != (tc.want == nil) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			if got != nil && *got != *tc.want {
				t.Fatalf("got %q want %q", *got, *tc.want)
			}
		})
	}
}

func TestEnsureValidSize(t *testing.T) {
	fallback := StringPtr("40")
	if got := EnsureValidSize(StringPtr("Code 10"), nil); got == nil || *got != "code10" {
		t.Fatalf("code 10: got %v", got)
	}
	if got := EnsureValidSize(StringPtr("38/40"), nil); got == nil || *got != "38/40" {
		t.Fatalf("range: got %v", got)
	}
	if got := EnsureValidSize(StringPtr("95 bc"), nil); got == nil || *got != "95BC" {
		t.Fatalf("cup size: got %v", got)
	}
	if got := EnsureValidSize(StringPtr("M"), fallback); got != fallback {
		t.Fatalf("short size should fall back, got %v", got)
	}
	if got := EnsureValidSize(nil, fallback); got != fallback {
		t.Fatalf("nil size should fall back, got %v", got)
	}
}
