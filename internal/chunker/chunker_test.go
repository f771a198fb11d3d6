package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

const sampleText = "The northern fjords freeze early in the year. Ice sheets form along the coastline and trap small fishing boats.\n\n" +
	"Further inland, the valleys stay warm enough for barley. Farmers rotate crops every second season to keep the soil productive. " +
	"Spring floods deposit fresh silt across the lower fields.\n\n" +
	"The capital sits at the mouth of the river. Trade ships arrive daily from the southern provinces carrying salt, timber and wool."

func TestSplitDeterministic(t *testing.T) {
	s, err := New(120, 30)
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	first := s.Split(sampleText)
	second := s.Split(sampleText)
	if len(first) == 0 {
		t.Fatalf("expected passages for non-empty input")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated splits differ:\n%q\n%q", first, second)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s, err := New(100, 20)
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	if got := s.Split(""); got != nil {
		t.Fatalf("expected no passages for empty input, got %q", got)
	}
}

func TestSplitRespectsSizeBound(t *testing.T) {
	s, err := New(80, 20)
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	for i, passage := range s.Split(sampleText) {
		if n := utf8.RuneCountInString(passage); n > 80 {
			t.Fatalf("passage %d has %d runes, want <= 80: %q", i, n, passage)
		}
	}
}

func TestSplitOverlapSharedWithPreviousPassage(t *testing.T) {
	const overlap = 25
	s, err := New(90, overlap)
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	passages := s.Split(sampleText)
	if len(passages) < 2 {
		t.Fatalf("expected multiple passages, got %d", len(passages))
	}
	for i := 1; i < len(passages); i++ {
		prev := []rune(passages[i-1])
		want := string(prev[len(prev)-overlap:])
		if !strings.HasPrefix(passages[i], want) {
			t.Fatalf("passage %d does not start with the %d-rune tail of its predecessor:\nprev tail %q\npassage   %q",
				i, overlap, want, passages[i])
		}
	}
}

func TestSplitRoundTripReconstruction(t *testing.T) {
	const overlap = 30
	s, err := New(100, overlap)
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	passages := s.Split(sampleText)
	if len(passages) < 2 {
		t.Fatalf("expected multiple passages, got %d", len(passages))
	}

	var rebuilt strings.Builder
	for i, passage := range passages {
		runes := []rune(passage)
		if i > 0 {
			drop := overlap
			if built := utf8.RuneCountInString(rebuilt.String()); built < drop {
				drop = built
			}
			runes = runes[drop:]
		}
		rebuilt.WriteString(string(runes))
	}

	got := strings.Join(strings.Fields(rebuilt.String()), " ")
	want := strings.Join(strings.Fields(sampleText), " ")
	if got != want {
		t.Fatalf("round trip mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestSplitLongUnbrokenText(t *testing.T) {
	s, err := New(50, 10)
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	text := strings.Repeat("x", 500)
	passages := s.Split(text)
	if len(passages) == 0 {
		t.Fatalf("expected hard-split passages")
	}
	for i, passage := range passages {
		if n := utf8.RuneCountInString(passage); n > 50 {
			t.Fatalf("passage %d has %d runes, want <= 50", i, n)
		}
	}
}

func TestNewRejectsBadParameters(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tc := range cases {
		if _, err := New(tc.size, tc.overlap); err == nil {
			t.Fatalf("%s: expected error for size=%d overlap=%d", tc.name, tc.size, tc.overlap)
		}
	}
}
