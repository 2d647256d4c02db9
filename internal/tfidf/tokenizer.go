package tfidf

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// DefaultMinTokenLength drops one-letter noise such as loop variables.
const DefaultMinTokenLength = 2

// TokenizerOptions configures NewTokenizer.
type TokenizerOptions struct {
	MinTokenLength int
	StopWords      []string
	// KeepCompounds also emits the whole identifier ("getuserbyid")
	// alongside its parts.
	KeepCompounds bool
}

// Tokenizer turns text into lower-cased word and identifier terms.
// Words are found with Unicode (UAX#29) segmentation; identifiers are then
// split on camelCase and snake_case boundaries. Numeric-only tokens and
// punctuation never become terms. It is safe for concurrent use.
type Tokenizer struct {
	words     *bleveunicode.UnicodeTokenizer
	lower     *lowercase.LowerCaseFilter
	minLen    int
	stop      map[string]struct{}
	compounds bool
}

// NewTokenizer builds a Tokenizer; zero options give the defaults.
func NewTokenizer(opts TokenizerOptions) *Tokenizer {
	minLen := opts.MinTokenLength
	if minLen <= 0 {
		minLen = DefaultMinTokenLength
	}
	stop := make(map[string]struct{}, len(opts.StopWords))
	for _, w := range opts.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{
		words:     bleveunicode.NewUnicodeTokenizer(),
		lower:     lowercase.NewLowerCaseFilter(),
		minLen:    minLen,
		stop:      stop,
		compounds: opts.KeepCompounds,
	}
}

// Tokenize returns terms in document order, duplicates included.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	stream := t.words.Tokenize([]byte(text))
	var parts analysis.TokenStream
	for _, tok := range stream {
		if tok.Type == analysis.Numeric {
			continue
		}
		word := string(tok.Term)
		split := SplitCodeToken(word)
		if t.compounds && len(split) > 1 {
			parts = append(parts, &analysis.Token{Term: []byte(strings.Trim(word, "_")), Type: tok.Type})
		}
		for _, p := range split {
			parts = append(parts, &analysis.Token{Term: []byte(p), Type: tok.Type})
		}
	}
	parts = t.lower.Filter(parts)

	terms := make([]string, 0, len(parts))
	for _, tok := range parts {
		term := string(tok.Term)
		if !t.keep(term) {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

func (t *Tokenizer) keep(term string) bool {
	if len([]rune(term)) < t.minLen || isDigits(term) {
		return false
	}
	_, stop := t.stop[term]
	return !stop
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// SplitCodeToken splits snake_case first, then camelCase within each part.
func SplitCodeToken(token string) []string {
	var out []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			out = append(out, SplitCamelCase(part)...)
		}
	}
	return out
}

// SplitCamelCase splits at lower→upper transitions and before the last
// capital of an acronym: "parseHTTPRequest" → parse, HTTP, Request.
func SplitCamelCase(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
