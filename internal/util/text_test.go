package util

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty input",
			text: "",
			want: "",
		},
		{
			name: "lowercases",
			text: "Gold Prices Soaring",
			want: "gold prices soaring",
		},
		{
			name: "collapses whitespace",
			text: "  The \t Fed\n raised   rates ",
			want: "the fed raised rates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeText(tt.text)
			if got != tt.want {
				t.Fatalf("NormalizeText(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestHashText_WhitespaceAndCaseInsensitive(t *testing.T) {
	a := HashText("Gold prices soaring today")
	b := HashText("  gold   PRICES soaring today\n")
	if a != b {
		t.Fatalf("expected equal hashes, got %s and %s", a, b)
	}

	c := HashText("Unemployment fell sharply")
	if a == c {
		t.Fatal("expected different hashes for different texts")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("hello", 10); got != "hello" {
		t.Fatalf("expected full string, got %q", got)
	}
	if got := Preview("hello world", 5); got != "hello" {
		t.Fatalf("expected truncated string, got %q", got)
	}
	if got := Preview("héllo", 2); got != "hé" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
	if got := Preview("hello", 0); got != "" {
		t.Fatalf("expected empty string for zero limit, got %q", got)
	}
}
