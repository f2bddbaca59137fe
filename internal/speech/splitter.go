package speech

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Unit is one sentence of a reply, the granularity of synthesis and
// playback. Indices are contiguous from 0 within one Split call.
type Unit struct {
	Index int
	Text  string
}

const (
	// longUnit is the length above which a sentence is split on commas.
	longUnit = 150
	// mediumUnit sentences are split on commas only when they carry more
	// than two of them.
	mediumUnit = 100
)

// abbreviations never end a sentence. Keys are lowercase with inner dots
// removed. Words that also end ordinary sentences ("no", "co", "est", "dec")
// are left out; "No. 5" or "Dec. 24" stay whole anyway because a digit never
// starts a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"eg": true, "ie": true, "inc": true, "ltd": true,
	"approx": true, "dept": true, "fig": true,
	"mt": true, "ave": true, "jan": true, "feb": true, "aug": true,
	"sept": true, "oct": true, "nov": true,
}

// closers may trail sentence punctuation and still belong to the sentence.
const closers = "\"')]}”’"

// commaSplit matches a comma followed by whitespace that is not the start of
// a number, so "1, 000" style lists of digits stay intact.
var commaSplit = regexp.MustCompile(`,\s+`)

// Split breaks text into sentence units. It is pure and deterministic.
//
// A '.', '!' or '?' (optionally followed by closing quotes or brackets) ends
// a sentence when it is followed by whitespace and an uppercase letter, or
// by the end of text. Decimal numbers, ellipses, known abbreviations and
// single-letter initials never end a sentence. Spaced dashes (" - ") also
// separate units, and long sentences are split further on commas.
//
// Empty units are never emitted; text without terminal punctuation yields a
// single unit.
func Split(text string) []Unit {
	var units []Unit
	for _, sentence := range sentences(text) {
		for _, piece := range pieces(sentence) {
			units = append(units, Unit{Index: len(units), Text: piece})
		}
	}
	return units
}

// pieces breaks one sentence at spaced dashes and long comma runs and drops
// empty results.
func pieces(sentence string) []string {
	var out []string
	for _, part := range strings.Split(sentence, " - ") {
		for _, piece := range splitLong(strings.TrimSpace(part)) {
			if piece = strings.TrimSpace(piece); piece != "" {
				out = append(out, piece)
			}
		}
	}
	return out
}

// sentences splits text at accepted sentence boundaries.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != '.' && r != '!' && r != '?' {
			i += size
			continue
		}
		// Consume the whole punctuation run plus closers.
		end := i
		dots := 0
		for end < len(text) {
			c, sz := utf8.DecodeRuneInString(text[end:])
			if c == '.' {
				dots++
			} else if c != '!' && c != '?' && !strings.ContainsRune(closers, c) {
				break
			}
			end += sz
		}
		if isBoundary(text, start, i, end, dots) {
			out = append(out, text[start:end])
			start = end
		}
		i = end
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// isBoundary decides whether the punctuation run text[punct:end] closes the
// sentence that began at start.
func isBoundary(text string, start, punct, end, dots int) bool {
	rest := strings.TrimLeftFunc(text[end:], unicode.IsSpace)
	if rest == "" {
		return true
	}
	// Must be followed by whitespace.
	if next, _ := utf8.DecodeRuneInString(text[end:]); !unicode.IsSpace(next) {
		return false
	}
	if dots >= 2 {
		return false
	}
	if text[punct] == '.' && isAbbreviation(text[start:punct]) {
		return false
	}
	first, _ := utf8.DecodeRuneInString(strings.TrimLeft(rest, "\"'(“‘"))
	return unicode.IsUpper(first)
}

// isAbbreviation reports whether the word ending at the end of s is a known
// abbreviation or a single-letter initial.
func isAbbreviation(s string) bool {
	idx := strings.LastIndexFunc(s, unicode.IsSpace)
	word := strings.TrimLeft(s[idx+1:], "\"'(")
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		return unicode.IsUpper(r)
	}
	return abbreviations[strings.ToLower(strings.ReplaceAll(word, ".", ""))]
}

// splitLong breaks a long sentence on commas not followed by a digit. Each
// piece except the last keeps its trailing comma.
func splitLong(s string) []string {
	n := len(s)
	if n <= mediumUnit || (n <= longUnit && strings.Count(s, ",") <= 2) {
		return []string{s}
	}
	var parts []string
	last := 0
	for _, loc := range commaSplit.FindAllStringIndex(s, -1) {
		if loc[1] < len(s) && s[loc[1]] >= '0' && s[loc[1]] <= '9' {
			continue
		}
		parts = append(parts, s[last:loc[0]+1])
		last = loc[1]
	}
	return append(parts, s[last:])
}

var whitespace = regexp.MustCompile(`\s+`)

// Preprocess normalises reply text before splitting: ellipses become a
// space, double dashes become a comma pause, and whitespace is collapsed.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "...", " ")
	text = strings.ReplaceAll(text, "..", " ")
	text = strings.ReplaceAll(text, "--", ", ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
