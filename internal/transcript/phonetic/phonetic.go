// Package phonetic finds the vocabulary term a misheard word or phrase most
// likely stands for.
//
// Matching runs in two passes over a prepared [Vocabulary]:
//
//  1. Terms whose Double Metaphone codes overlap the input's codes are ranked
//     by Jaro-Winkler similarity and accepted at the phonetic threshold.
//  2. When no term sounds alike, pure Jaro-Winkler similarity is tested
//     against the stricter fuzzy threshold.
//
// Multi-word terms ("Home Assistant") are compared on the full string, on the
// space-stripped string and word by word; the best of the three wins.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
	defaultMinLength         = 3
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term that
// shares a phonetic code with the input. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that does
// not sound alike. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// WithMinLength sets the shortest input, in letters, the matcher will try to
// correct. Short function words match almost anything. Default: 3.
func WithMinLength(n int) Option {
	return func(m *Matcher) { m.minLength = n }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLength         int
}

// New returns a Matcher with the given options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ─── Vocabulary ───

type term struct {
	canonical string
	lower     string
	tokens    []string
	joined    string
	codes     map[string]struct{}
}

// Vocabulary holds terms with their phonetic codes computed once.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// NewVocabulary prepares terms for matching. Blank and duplicate terms are
// skipped; the first spelling of a duplicate wins.
func NewVocabulary(terms ...string) *Vocabulary {
	v := &Vocabulary{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			canonical: strings.TrimSpace(t),
			lower:     lower,
			tokens:    tokens,
			joined:    strings.Join(tokens, ""),
			codes:     codesFor(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of distinct terms.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// MaxWords returns the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// ─── Matching ───

// Match returns the term in v that input most likely stands for. When nothing
// clears a threshold it returns input unchanged, confidence 0 and false.
func (m *Matcher) Match(input string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v.Len() == 0 {
		return input, 0, false
	}
	lower := strings.ToLower(strings.TrimSpace(input))
	tokens := strings.Fields(lower)
	if len(strings.Join(tokens, "")) < m.minLength {
		return input, 0, false
	}
	codes := codesFor(tokens)
	joined := strings.Join(tokens, "")

	var (
		best       *term
		bestScore  float64
		bestSounds bool
	)
	for i := range v.terms {
		t := &v.terms[i]
		if t.lower == lower {
			return t.canonical, 1, true
		}
		if !similarLength(len(joined), len(t.joined)) {
			continue
		}
		score := similarity(tokens, lower, joined, t)
		sounds := overlaps(codes, t.codes)
		switch {
		case sounds && score >= m.phoneticThreshold:
			if !bestSounds || score > bestScore {
				best, bestScore, bestSounds = t, score, true
			}
		case !sounds && !bestSounds && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = t, score
		}
	}
	if best == nil {
		return input, 0, false
	}
	return best.canonical, bestScore, true
}

// similarLength rejects pairs whose letter counts differ by more than a quarter.
// Jaro-Winkler rewards shared prefixes, which would otherwise map "home" onto
// "home assistant".
func similarLength(a, b int) bool {
	return 4*min(a, b) >= 3*max(a, b)
}

func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, tok := range tokens {
		p, s := matchr.DoubleMetaphone(tok)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity scores input against t. Word-by-word scores only count when
// both sides have the same number of words, so a single matching word does
// not drag a longer phrase onto a one-word term.
func similarity(tokens []string, full, joined string, t *term) float64 {
	score := matchr.JaroWinkler(full, t.lower, false)
	if len(tokens) > 1 || len(t.tokens) > 1 {
		score = max(score, matchr.JaroWinkler(joined, t.joined, false))
	}
	if len(tokens) == len(t.tokens) && len(tokens) > 1 {
		var sum float64
		for i := range tokens {
			sum += matchr.JaroWinkler(tokens[i], t.tokens[i], false)
		}
		score = max(score, sum/float64(len(tokens)))
	}
	return score
}
