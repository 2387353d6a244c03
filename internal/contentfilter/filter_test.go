package contentfilter

import (
	"context"
	"testing"
)

func TestKeywordFilter(t *testing.T) {
	f := NewKeywordFilter([]string{"Stupid", " meet up ", ""})
	cases := []struct {
		text    string
		flagged bool
	}{
		{"see you at lunch", false},
		{"that was STUPID", true},
		{"stupidity is a word on its own", false},
		{"want to meet up later?", true},
		{"call me at 555-123-4567", true},
		{"my email is kid@example.com", true},
		{"look at https://example.com/x", true},
		{"I scored 42 points", false},
	}
	for _, tc := range cases {
		v, err := f.Scan(context.Background(), tc.text)
		if err != nil {
			t.Fatalf("scan %q: %v", tc.text, err)
		}
		if v.Flagged != tc.flagged {
			t.Fatalf("scan %q: expected flagged=%v, got %+v", tc.text, tc.flagged, v)
		}
		if v.Flagged && v.Reason == "" {
			t.Fatalf("scan %q: flagged without a reason", tc.text)
		}
	}
}
