// Package chunker splits extracted document text into overlapping passages.
//
// Splitting prefers semantic boundaries: paragraph breaks first, then line
// breaks, then sentence ends, then word gaps, falling back to a hard rune
// window when a piece still does not fit. Output is deterministic for
// identical input and parameters.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Boundary separators tried in order. Each separator stays attached to the
// text before it, so concatenating the split pieces reproduces the input.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// Splitter produces passages of at most Size runes where each passage after
// the first starts with the trailing Overlap runes of the text before it.
type Splitter struct {
	size    int
	overlap int
}

// New validates the chunking parameters.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be >= 0, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split chunks text into ordered passages. Empty input yields no passages.
// Whitespace-only segments are folded into the running text but never
// emitted as passages of their own.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	segments := split(text, s.size-s.overlap, separators)

	var out []string
	var tail []rune
	for _, segment := range segments {
		prefix := string(tail)
		tail = tailRunes(append(tail, []rune(segment)...), s.overlap)
		if strings.TrimSpace(segment) == "" {
			continue
		}
		out = append(out, prefix+segment)
	}
	return out
}

// split cuts text into ordered segments of at most limit runes whose
// concatenation equals text.
func split(text string, limit int, seps []string) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardSplit(text, limit)
	}
	parts := strings.SplitAfter(text, seps[0])
	if len(parts) == 1 {
		return split(text, limit, seps[1:])
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	for _, part := range parts {
		partLen := utf8.RuneCountInString(part)
		if curLen > 0 && curLen+partLen > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if partLen > limit {
			out = append(out, split(part, limit, seps[1:])...)
			continue
		}
		cur.WriteString(part)
		curLen += partLen
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

func hardSplit(text string, limit int) []string {
	runes := []rune(text)
	out := make([]string, 0, (len(runes)/limit)+1)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func tailRunes(runes []rune, n int) []rune {
	if n <= 0 || len(runes) == 0 {
		return nil
	}
	if len(runes) <= n {
		return runes
	}
	return runes[len(runes)-n:]
}
