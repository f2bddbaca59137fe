package transcript_test

import (
	"testing"
	"time"

	"github.com/MrWong99/vocalis/internal/transcript"
	"github.com/MrWong99/vocalis/pkg/audio"
)

func utterance(d time.Duration) *audio.Utterance {
	const rate = 16000
	n := int(d.Seconds() * rate)
	return &audio.Utterance{
		Frames:     []audio.Frame{{Samples: make([]int16, n), SampleRate: rate}},
		SampleRate: rate,
	}
}

func TestCleaner_Clean(t *testing.T) {
	t.Parallel()

	c := transcript.New()
	long := utterance(time.Second)

	tests := []struct {
		name   string
		u      *audio.Utterance
		text   string
		want   string
		wantOK bool
	}{
		{name: "plain", u: long, text: "What time is it?", want: "What time is it?", wantOK: true},
		{name: "collapses whitespace", u: long, text: "  hello \n there  ", want: "hello there", wantOK: true},
		{name: "strips non-ascii", u: long, text: "café olé ♪", want: "caf ol", wantOK: true},
		{name: "too short", u: utterance(400 * time.Millisecond), text: "hello there", wantOK: false},
		{name: "unknown duration", u: nil, text: "hello there", want: "hello there", wantOK: true},
		{name: "single character", u: long, text: "a", wantOK: false},
		{name: "punctuation only", u: long, text: "...?!", wantOK: false},
		{name: "nothing left after ascii filter", u: long, text: "日本語", wantOK: false},
		{name: "two characters", u: long, text: "ok", want: "ok", wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := c.Clean(tt.u, tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Clean(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestCleaner_MinDurationDisabled(t *testing.T) {
	t.Parallel()

	c := transcript.New(transcript.WithMinDuration(0))
	if _, ok := c.Clean(utterance(100*time.Millisecond), "hello there"); !ok {
		t.Error("short utterance rejected with the duration check disabled")
	}
}

func TestCleaner_Fix(t *testing.T) {
	t.Parallel()

	c := transcript.New(transcript.WithVocabulary("Claude", "Home Assistant"))

	tests := []struct {
		name        string
		text        string
		want        string
		corrections int
	}{
		{name: "single word keeps punctuation", text: "ask cloud, please", want: "ask Claude, please", corrections: 1},
		{name: "multi-word term", text: "turn on home assistent now", want: "turn on Home Assistant now", corrections: 1},
		{name: "canonical spelling untouched", text: "thanks Claude", want: "thanks Claude", corrections: 0},
		{name: "partial term untouched", text: "going home", want: "going home", corrections: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, corrections := c.Fix(tt.text)
			if got != tt.want {
				t.Errorf("Fix(%q) = %q, want %q", tt.text, got, tt.want)
			}
			if len(corrections) != tt.corrections {
				t.Errorf("Fix(%q) made %d corrections, want %d: %+v", tt.text, len(corrections), tt.corrections, corrections)
			}
		})
	}
}

func TestCleaner_FixWithoutVocabulary(t *testing.T) {
	t.Parallel()

	c := transcript.New()
	got, corrections := c.Fix("ask cloud")
	if got != "ask cloud" || corrections != nil {
		t.Errorf("Fix = %q, %v; want input unchanged", got, corrections)
	}
}

func TestMeaningful(t *testing.T) {
	t.Parallel()

	for text, want := range map[string]bool{
		"":      false,
		" ":     false,
		"x":     false,
		"--":    false,
		"42":    true,
		"hi!":   true,
		" . a ": true,
	} {
		if got := transcript.Meaningful(text); got != want {
			t.Errorf("Meaningful(%q) = %v, want %v", text, got, want)
		}
	}
}
