// Package wake decides whether a transcript contains the configured wake
// phrase.
//
// Transcribers routinely mangle short wake phrases ("hey claude" comes back
// as "hey clod", "a claude", "hey cloud"), so matching is fuzzy:
//
//  1. Containment of the phrase or a known mishearing scores 1.0.
//  2. Every window of words the length of the phrase is scored with the
//     longest-common-subsequence ratio 2*LCS/(len(a)+len(b)), as is the whole
//     candidate.
//  3. When no window reaches the threshold, a window whose words all share a
//     Double Metaphone code with the phrase words in order is accepted if its
//     ratio is at least the phonetic threshold.
//
// The ratio has no prefix bonus, so "hey alexa" or "hey clock" do not pass
// on their shared "hey c".
//
// A [Matcher] is read-only after construction and safe for concurrent use.
package wake

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultThreshold is the minimum similarity ratio for a fuzzy match.
	DefaultThreshold = 0.85

	defaultPhoneticThreshold = 0.70
)

// knownMishearings lists transcriptions observed for common wake phrases.
var knownMishearings = map[string][]string{
	"hey claude": {
		"hey claud", "hey quad", "hey cloud", "hey clod", "hey claw",
		"a claude", "hey close", "hey caught", "hey clawd", "hey cod",
	},
	"hello claude": {
		"hello claud", "hello cloud", "hello quad", "hello claw",
		"hello close", "hello caught",
	},
	"hi claude": {"hi claud", "hi cloud", "hi quad", "hi claw", "hi close"},
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the fuzzy similarity threshold. Default: 0.85.
func WithThreshold(t float64) Option {
	return func(m *Matcher) { m.threshold = t }
}

// WithPhoneticThreshold sets the minimum similarity for a phonetically
// aligned window. Default: 0.70.
func WithPhoneticThreshold(t float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = t }
}

// WithVariants adds accepted spellings on top of the built-in mishearing
// table.
func WithVariants(variants ...string) Option {
	return func(m *Matcher) {
		for _, v := range variants {
			if n := Normalize(v); n != "" {
				m.variants = append(m.variants, n)
			}
		}
	}
}

// WithoutPhonetic disables the Double Metaphone fallback.
func WithoutPhonetic() Option {
	return func(m *Matcher) { m.phonetic = false }
}

// Matcher matches transcripts against one wake phrase.
type Matcher struct {
	phrase            string
	words             []string
	codes             []map[string]struct{}
	variants          []string
	threshold         float64
	phoneticThreshold float64
	phonetic          bool
}

// New returns a matcher for phrase.
func New(phrase string, opts ...Option) *Matcher {
	p := Normalize(phrase)
	m := &Matcher{
		phrase:            p,
		words:             strings.Fields(p),
		threshold:         DefaultThreshold,
		phoneticThreshold: defaultPhoneticThreshold,
		phonetic:          true,
	}
	m.variants = append(m.variants, knownMishearings[p]...)
	// "hey, claude" normalises to the phrase itself; the joined form
	// catches transcribers that drop the space.
	if len(m.words) > 1 {
		m.variants = append(m.variants, strings.Join(m.words, ""))
	}
	for _, o := range opts {
		o(m)
	}
	m.codes = make([]map[string]struct{}, len(m.words))
	for i, w := range m.words {
		m.codes[i] = codes(w)
	}
	return m
}

// Phrase returns the normalised wake phrase.
func (m *Matcher) Phrase() string { return m.phrase }

// Threshold returns the fuzzy similarity threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Matches reports whether text contains the wake phrase.
func (m *Matcher) Matches(text string) bool {
	_, _, ok := m.locate(Normalize(text))
	return ok
}

// Score returns the best similarity in [0, 1] between the phrase and any
// part of text. Containment of the phrase or a known variant scores 1.
func (m *Matcher) Score(text string) float64 {
	if m.phrase == "" {
		return 0
	}
	norm := Normalize(text)
	if norm == "" {
		return 0
	}
	if m.contains(norm) {
		return 1
	}
	best := similarity(norm, m.phrase)
	tokens := strings.Fields(norm)
	for i := 0; i+len(m.words) <= len(tokens); i++ {
		window := strings.Join(tokens[i:i+len(m.words)], " ")
		if s := similarity(window, m.phrase); s > best {
			best = s
		}
	}
	return best
}

// Strip returns the words following the wake phrase in text. ok is false
// when text does not contain the phrase. The remainder is normalised.
func (m *Matcher) Strip(text string) (rest string, ok bool) {
	norm := Normalize(text)
	tokens, end, ok := m.locate(norm)
	if !ok {
		return "", false
	}
	return strings.Join(tokens[end:], " "), true
}

// locate finds the wake phrase in norm and returns its tokens with the index
// just past the match.
func (m *Matcher) locate(norm string) ([]string, int, bool) {
	tokens := strings.Fields(norm)
	if m.phrase == "" || len(tokens) == 0 {
		return tokens, 0, false
	}

	// Exact phrase or variant, matched on word boundaries.
	for _, cand := range append([]string{m.phrase}, m.variants...) {
		if end, ok := findWords(tokens, strings.Fields(cand)); ok {
			return tokens, end, true
		}
	}

	n := len(m.words)
	bestEnd, bestScore := -1, 0.0
	for i := 0; i+n <= len(tokens); i++ {
		window := strings.Join(tokens[i:i+n], " ")
		s := similarity(window, m.phrase)
		if s >= m.threshold && s > bestScore {
			bestEnd, bestScore = i+n, s
		}
	}
	if bestEnd >= 0 {
		return tokens, bestEnd, true
	}

	if m.phonetic {
		for i := 0; i+n <= len(tokens); i++ {
			if m.phoneticWindow(tokens[i : i+n]) {
				return tokens, i + n, true
			}
		}
	}

	// Whole-candidate comparison catches merged or split words.
	if similarity(norm, m.phrase) >= m.threshold {
		return tokens, len(tokens), true
	}
	return tokens, 0, false
}

func (m *Matcher) contains(norm string) bool {
	tokens := strings.Fields(norm)
	for _, cand := range append([]string{m.phrase}, m.variants...) {
		if _, ok := findWords(tokens, strings.Fields(cand)); ok {
			return true
		}
	}
	return false
}

// phoneticWindow reports whether every word of window shares a Double
// Metaphone code with the phrase word at the same position and the window
// is similar enough overall.
func (m *Matcher) phoneticWindow(window []string) bool {
	for i, w := range window {
		if !overlap(codes(w), m.codes[i]) {
			return false
		}
	}
	return similarity(strings.Join(window, " "), m.phrase) >= m.phoneticThreshold
}

// Matches reports whether candidate contains phrase using default options.
func Matches(candidate, phrase string) bool {
	return New(phrase).Matches(candidate)
}

// Normalize lowercases s, removes punctuation and symbols, and collapses
// whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			continue
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// similarity returns 2*LCS/(len(a)+len(b)) over runes, 0 for two empty
// strings.
func similarity(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 0
	}
	return 2 * float64(matchr.LongestCommonSubsequence(a, b)) / float64(total)
}

// findWords returns the index just past the first occurrence of needle in
// tokens.
func findWords(tokens, needle []string) (int, bool) {
	if len(needle) == 0 {
		return 0, false
	}
outer:
	for i := 0; i+len(needle) <= len(tokens); i++ {
		for j, w := range needle {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return i + len(needle), true
	}
	return 0, false
}

// codes returns the Double Metaphone codes of word. Empty codes are
// excluded.
func codes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
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
