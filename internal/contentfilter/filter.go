package contentfilter

import (
	"context"
	"regexp"
	"strings"
)

// Verdict is the outcome of scanning a piece of text.
type Verdict struct {
	Flagged bool
	Reason  string
}

// Scanner inspects text before a message's initial status is computed.
type Scanner interface {
	Scan(ctx context.Context, text string) (Verdict, error)
}

var builtinPatterns = []struct {
	reason string
	re     *regexp.Regexp
}{
	{"contains a phone number", regexp.MustCompile(`(?:\+?\d[\s\-.]?){7,}\d`)},
	{"contains an email address", regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
	{"contains a link", regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)},
}

// KeywordFilter flags blocked terms plus contact details and links.
type KeywordFilter struct {
	terms []string
}

// NewKeywordFilter builds a filter over the given blocked terms. Matching
// is case-insensitive on whole words.
func NewKeywordFilter(terms []string) *KeywordFilter {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			out = append(out, term)
		}
	}
	return &KeywordFilter{terms: out}
}

func (f *KeywordFilter) Scan(_ context.Context, text string) (Verdict, error) {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	})
	for _, term := range f.terms {
		if strings.Contains(term, " ") {
			if strings.Contains(lower, term) {
				return Verdict{Flagged: true, Reason: "contains blocked language"}, nil
			}
			continue
		}
		for _, w := range words {
			if w == term {
				return Verdict{Flagged: true, Reason: "contains blocked language"}, nil
			}
		}
	}
	for _, p := range builtinPatterns {
		if p.re.MatchString(text) {
			return Verdict{Flagged: true, Reason: p.reason}, nil
		}
	}
	return Verdict{}, nil
}
