package codes

import (
	"strings"
	"testing"
)

func TestGenerateUsesAlphabet(t *testing.T) {
	for _, length := range []int{FriendCodeLength, SchoolCodeLength} {
		code, err := Generate(length)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != length {
			t.Fatalf("expected %d chars, got %q", length, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
	}
}

func TestAlphabetExcludesAmbiguousGlyphs(t *testing.T) {
	if len(Alphabet) != 32 {
		t.Fatalf("expected 32 symbols, got %d", len(Alphabet))
	}
	if strings.ContainsAny(Alphabet, "0O1I") {
		t.Fatalf("alphabet contains an ambiguous glyph: %s", Alphabet)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  ab3x7q "); got != "AB3X7Q" {
		t.Fatalf("unexpected normalized code %q", got)
	}
}
