package worker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "Early Lease Termination", "Early Lease Termination"},
		{"quoted", `"Employment Contract Dispute"`, "Employment Contract Dispute"},
		{"trailing punctuation", "Director Duties Explained.", "Director Duties Explained"},
		{"surrounding whitespace", "  Shareholder Agreement Basics \n", "Shareholder Agreement Basics"},
		{"empty", "   ", ""},
		{"overlong is capped", strings.Repeat("Company Law ", 20), strings.TrimSpace(strings.Repeat("Company Law ", 20)[:80])},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := cleanTitle(tc.raw); got != tc.want {
				t.Errorf("cleanTitle(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestCleanTitle_CapsOnRuneBoundary(t *testing.T) {
	// Thai runes are three bytes each; a byte-index cut at 80 would
	// land mid-character.
	raw := strings.Repeat("กฎหมายธุรกิจ", 3)

	got := cleanTitle(raw)

	if !utf8.ValidString(got) {
		t.Errorf("cleanTitle produced invalid UTF-8: %q", got)
	}
	if len(got) > 80 {
		t.Errorf("title is %d bytes, want at most 80", len(got))
	}
	if !strings.HasPrefix(raw, got) {
		t.Errorf("capped title %q is not a prefix of the input", got)
	}
}
