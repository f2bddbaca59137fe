// Package transcript cleans raw transcriber output before a session acts on
// it.
//
// Whisper-style models hallucinate on short bursts of noise ("you", ".",
// "Thank you.") and occasionally emit stray non-ASCII glyphs, and every
// transcriber mangles uncommon names. A [Cleaner] applies, in order:
//
//  1. a minimum utterance duration,
//  2. an ASCII filter,
//  3. a noise filter rejecting one-character and punctuation-only results,
//  4. phonetic fixups against a configured vocabulary.
package transcript

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/MrWong99/vocalis/internal/transcript/phonetic"
	"github.com/MrWong99/vocalis/pkg/audio"
)

// DefaultMinDuration is the shortest utterance whose transcript is trusted.
const DefaultMinDuration = 500 * time.Millisecond

// Correction records one vocabulary substitution.
type Correction struct {
	// Original is the span as the transcriber produced it.
	Original string

	// Corrected is the canonical vocabulary term that replaced it.
	Corrected string

	// Confidence is the Jaro-Winkler score of the match (0.0–1.0).
	Confidence float64
}

// Option configures a [Cleaner].
type Option func(*Cleaner)

// WithMinDuration overrides [DefaultMinDuration]. Zero disables the check.
func WithMinDuration(d time.Duration) Option {
	return func(c *Cleaner) { c.minDuration = d }
}

// WithVocabulary sets the terms that misheard spans are corrected to.
func WithVocabulary(terms ...string) Option {
	return func(c *Cleaner) { c.vocab = phonetic.NewVocabulary(terms...) }
}

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(c *Cleaner) { c.matcher = m }
}

// WithLogger overrides the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Cleaner) { c.log = l }
}

// Cleaner is safe for concurrent use.
type Cleaner struct {
	minDuration time.Duration
	vocab       *phonetic.Vocabulary
	matcher     *phonetic.Matcher
	log         *slog.Logger
}

// New returns a Cleaner. Without [WithVocabulary] no fixups are applied.
func New(opts ...Option) *Cleaner {
	c := &Cleaner{
		minDuration: DefaultMinDuration,
		matcher:     phonetic.New(),
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Clean returns the cleaned text, or ok=false when the utterance should be
// treated as noise. u may be nil when the duration is unknown.
func (c *Cleaner) Clean(u *audio.Utterance, text string) (string, bool) {
	if u != nil && c.minDuration > 0 {
		if d := u.Duration(); d < c.minDuration {
			c.log.Debug("transcript: utterance too short", "duration", d, "text", text)
			return "", false
		}
	}
	text = strings.Join(strings.Fields(ASCII(text)), " ")
	if !Meaningful(text) {
		c.log.Debug("transcript: discarding noise", "text", text)
		return "", false
	}
	fixed, corrections := c.Fix(text)
	for _, corr := range corrections {
		c.log.Debug("transcript: vocabulary fixup",
			"original", corr.Original, "corrected", corr.Corrected, "confidence", corr.Confidence)
	}
	return fixed, true
}

// ASCII drops every rune outside the printable ASCII range. Tabs and line
// breaks become spaces.
func ASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Meaningful reports whether s holds more than one character and at least one
// letter or digit.
func Meaningful(s string) bool {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= 1 {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// Fix replaces spans of text that sound like vocabulary terms. At each word
// the longest window that matches wins, so multi-word terms take precedence
// over their parts. Punctuation around a replaced span is kept.
func (c *Cleaner) Fix(text string) (string, []Correction) {
	maxWords := c.vocab.MaxWords()
	if maxWords == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))
	var corrections []Correction

	for i := 0; i < len(tokens); {
		n, corr, ok := c.matchAt(tokens, i, min(maxWords, len(tokens)-i))
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}
		if corr.Corrected == corr.Original {
			out = append(out, tokens[i:i+n]...)
			i += n
			continue
		}
		lead, _ := splitPunct(tokens[i])
		_, trail := splitPunct(tokens[i+n-1])
		out = append(out, lead+corr.Corrected+trail)
		corrections = append(corrections, corr)
		i += n
	}
	return strings.Join(out, " "), corrections
}

func (c *Cleaner) matchAt(tokens []string, i, maxN int) (int, Correction, bool) {
	for n := maxN; n >= 1; n-- {
		words := make([]string, 0, n)
		for _, tok := range tokens[i : i+n] {
			if _, core, _ := trimPunct(tok); core != "" {
				words = append(words, core)
			}
		}
		if len(words) != n {
			continue
		}
		window := strings.Join(words, " ")
		term, score, ok := c.matcher.Match(window, c.vocab)
		if !ok {
			continue
		}
		return n, Correction{Original: window, Corrected: term, Confidence: score}, true
	}
	return 0, Correction{}, false
}

// splitPunct returns the leading and trailing punctuation of a token.
func splitPunct(tok string) (lead, trail string) {
	lead, _, trail = trimPunct(tok)
	return lead, trail
}

func trimPunct(tok string) (lead, core, trail string) {
	isPunct := func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }
	core = strings.TrimLeftFunc(tok, isPunct)
	lead = tok[:len(tok)-len(core)]
	trimmed := strings.TrimRightFunc(core, isPunct)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}
