// Package evidence scores raw source text and trims it into citation
// snippets using keyword-overlap ranking.
package evidence

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NoContent is the sentinel returned for empty input.
const NoContent = "No content available"

// truncationMarker is appended whenever text had to be cut.
const truncationMarker = "..."

// Ranker selects the most relevant snippet from raw evidence text.
type Ranker struct {
	keywords map[string]bool
}

// NewRanker creates a ranker over the given keyword vocabulary. A nil or
// empty list falls back to the built-in domain keywords.
func NewRanker(keywords []string) *Ranker {
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		set[strings.ToLower(k)] = true
	}
	return &Ranker{keywords: set}
}

// ExtractSnippet returns the most relevant portion of rawText, never longer
// than maxLength plus the truncation marker. Sentences are scored by domain
// keyword hits; the curated vocabulary, not the question text, drives
// scoring. Highest-scoring sentences are taken first, ties in original
// order, until the next would overflow the budget. When no sentence scores
// at all, the raw text is truncated instead. Empty input returns NoContent.
func (r *Ranker) ExtractSnippet(rawText, question string, maxLength int) string {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return NoContent
	}

	type scored struct {
		text  string
		score int
	}
	var hits []scored
	for _, s := range splitSentences(text) {
		if n := r.score(s); n > 0 {
			hits = append(hits, scored{text: s, score: n})
		}
	}
	if len(hits) == 0 {
		return truncate(text, maxLength)
	}

	// Stable sort keeps original order for equal scores.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	var picked []string
	total := 0
	for _, h := range hits {
		n := utf8.RuneCountInString(h.text)
		if len(picked) > 0 {
			n++ // joining space
		}
		if total+n > maxLength {
			break
		}
		picked = append(picked, h.text)
		total += n
	}
	if len(picked) == 0 {
		// Even the best sentence does not fit whole.
		return truncate(hits[0].text, maxLength)
	}

	return strings.Join(picked, " ")
}

// score counts keyword occurrences in one sentence.
func (r *Ranker) score(sentence string) int {
	n := 0
	for _, tok := range tokenize(sentence) {
		if r.keywords[tok] {
			n++
		}
	}
	return n
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
}

// splitSentences breaks text on sentence terminators and line breaks,
// dropping the terminators and surrounding whitespace.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, c := range text {
		switch c {
		case '.', '!', '?', '\n':
			flush()
		default:
			b.WriteRune(c)
		}
	}
	flush()
	return out
}

func truncate(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	return string(runes[:maxLength]) + truncationMarker
}
