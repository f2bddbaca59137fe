// Package voicecmd classifies transcripts that are control commands rather
// than prompts: cancelling the current turn, ending the session, or switching
// a wake-word session into conversation mode.
//
// Goodbye phrases must make up the whole transcript (after punctuation is
// stripped) so that "say goodbye to my cat" is still a prompt. Cancel
// phrases only need to appear as whole words, since they are usually spoken
// over playback and arrive with noise around them.
package voicecmd

import (
	"log/slog"
	"regexp"
	"strings"
)

// Command is the action a transcript asks for.
type Command int

const (
	// None means the transcript is an ordinary prompt.
	None Command = iota
	// Cancel aborts the turn in progress.
	Cancel
	// Goodbye ends the session.
	Goodbye
	// ConversationMode switches a wake session into a nested chat.
	ConversationMode
)

// String implements [fmt.Stringer].
func (c Command) String() string {
	switch c {
	case Cancel:
		return "cancel"
	case Goodbye:
		return "goodbye"
	case ConversationMode:
		return "conversation_mode"
	default:
		return "none"
	}
}

// DefaultGoodbyePhrases end a session when spoken on their own.
var DefaultGoodbyePhrases = []string{
	"goodbye", "bye", "bye bye", "see you", "see you later",
	"talk to you later", "exit", "quit",
}

// DefaultCancelPhrases abort the current turn wherever they appear.
var DefaultCancelPhrases = []string{
	"cancel", "stop", "shut up", "quiet", "silence", "nevermind", "never mind",
}

// Pattern pairs a compiled regex with the command it signals.
type Pattern struct {
	// Name is a human-readable label for logging.
	Name string

	// Regex is matched against the cleaned, lowercased transcript.
	Regex *regexp.Regexp

	// Command is returned when Regex matches.
	Command Command
}

// Option configures a [Filter].
type Option func(*Filter)

// WithGoodbyePhrases replaces the goodbye phrase list.
func WithGoodbyePhrases(phrases ...string) Option {
	return func(f *Filter) { f.goodbye = phrases }
}

// WithCancelPhrases replaces the cancel phrase list.
func WithCancelPhrases(phrases ...string) Option {
	return func(f *Filter) { f.cancel = phrases }
}

// WithPattern appends a custom pattern, checked after the built-in ones.
func WithPattern(p Pattern) Option {
	return func(f *Filter) { f.extra = append(f.extra, p) }
}

// Filter classifies transcripts. It is read-only after construction and
// safe for concurrent use.
type Filter struct {
	goodbye  []string
	cancel   []string
	extra    []Pattern
	patterns []Pattern
}

// New builds a Filter from the default phrase lists and opts.
func New(opts ...Option) *Filter {
	f := &Filter{
		goodbye: DefaultGoodbyePhrases,
		cancel:  DefaultCancelPhrases,
	}
	for _, o := range opts {
		o(f)
	}
	f.patterns = append(f.patterns,
		Pattern{Name: "goodbye", Regex: wholeMatch(f.goodbye), Command: Goodbye},
		Pattern{Name: "conversation-mode", Regex: regexp.MustCompile(`\bconversation mode\b`), Command: ConversationMode},
		Pattern{Name: "cancel", Regex: wordMatch(f.cancel), Command: Cancel},
	)
	f.patterns = append(f.patterns, f.extra...)
	return f
}

// Classify returns the command text asks for, or [None].
func (f *Filter) Classify(text string) Command {
	clean := Clean(text)
	if clean == "" {
		return None
	}
	for _, p := range f.patterns {
		if p.Regex == nil || !p.Regex.MatchString(clean) {
			continue
		}
		slog.Debug("voicecmd: command recognised", "pattern", p.Name, "text", clean)
		return p.Command
	}
	return None
}

// IsGoodbye reports whether text is a goodbye phrase.
func (f *Filter) IsGoodbye(text string) bool { return f.Classify(text) == Goodbye }

// IsCancel reports whether text contains a cancel phrase.
func (f *Filter) IsCancel(text string) bool { return f.Classify(text) == Cancel }

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Clean lowercases text, removes punctuation and collapses whitespace.
func Clean(text string) string {
	return strings.Join(strings.Fields(nonWord.ReplaceAllString(strings.ToLower(text), "")), " ")
}

// wholeMatch compiles phrases into a regex matching the entire string.
func wholeMatch(phrases []string) *regexp.Regexp {
	alt := alternation(phrases)
	if alt == "" {
		return nil
	}
	return regexp.MustCompile(`^(?:` + alt + `)$`)
}

// wordMatch compiles phrases into a regex matching any of them on word
// boundaries.
func wordMatch(phrases []string) *regexp.Regexp {
	alt := alternation(phrases)
	if alt == "" {
		return nil
	}
	return regexp.MustCompile(`\b(?:` + alt + `)\b`)
}

func alternation(phrases []string) string {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if c := Clean(p); c != "" {
			quoted = append(quoted, regexp.QuoteMeta(c))
		}
	}
	return strings.Join(quoted, "|")
}
