// Package entity derives a target company identifier and a bag of search
// terms from free-text questions.
package entity

import (
	"strings"
	"unicode"
)

// maxSearchTerms bounds how many content words feed the social-media search.
const maxSearchTerms = 5

// stopWords are dropped when building search terms.
var stopWords = map[string]bool{
	"what": true, "are": true, "the": true, "is": true, "how": true,
	"does": true, "do": true, "can": true, "will": true, "would": true,
	"should": true,
}

// Extractor matches questions against an ordered alias rule table.
type Extractor struct {
	rules []Rule
}

// NewExtractor creates an extractor over the given rules. A nil or empty
// rule set falls back to the built-in table.
func NewExtractor(rules []Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

// ExtractTicker returns the canonical ticker for the first rule whose alias
// appears as a whole word in the question, or false when no rule matches.
// Deterministic: rule order, not position in the question, breaks ties.
func (e *Extractor) ExtractTicker(question string) (string, bool) {
	present := make(map[string]bool)
	for _, tok := range tokenize(question) {
		present[tok] = true
	}

	for _, r := range e.rules {
		for _, a := range r.Aliases {
			if present[strings.ToLower(a)] {
				return r.Ticker, true
			}
		}
	}
	return "", false
}

// ExtractSearchTerms tokenizes the question, drops stop words and tokens of
// length <= 2, and joins the first surviving tokens in original order.
// Non-empty whenever the question contains at least one content word.
func (e *Extractor) ExtractSearchTerms(question string) string {
	var kept []string
	for _, tok := range tokenize(question) {
		if len(tok) <= 2 || stopWords[tok] {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == maxSearchTerms {
			break
		}
	}
	return strings.Join(kept, " ")
}

// tokenize lowercases and splits on word boundaries.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
