// Package mock provides a test double for the tts.Synthesizer interface.
//
// By default Synthesize returns a buffer whose PCM bytes are the text
// itself, so tests can tell which sentence reached the sink:
//
//	s := &mock.Synthesizer{Delay: func(text string) time.Duration { return 10 * time.Millisecond }}
//	buf, _ := s.Synthesize(ctx, "Hello.", tts.VoiceProfile{})
//	string(buf.PCM) // "Hello."
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.VoiceProfile
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Delay, when set, returns how long Synthesize waits before answering
	// for the given text. The wait is abandoned when ctx is cancelled.
	Delay func(text string) time.Duration

	// Errs maps texts to errors returned for them.
	Errs map[string]error

	// Err, if non-nil, is returned for every text not in Errs.
	Err error

	// SampleRate is the rate stamped on returned buffers. Default 16000.
	SampleRate int

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// --- Call records ---

	// Calls records every Synthesize call in arrival order.
	Calls []SynthesizeCall

	inFlight    int
	maxInFlight int
}

// Synthesize records the call, waits for Delay and returns the scripted
// result.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Buffer, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, SynthesizeCall{Text: text, Voice: voice})
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	delay := s.Delay
	err, scripted := s.Errs[text]
	if !scripted {
		err = s.Err
	}
	rate := s.SampleRate
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay != nil {
		if d := delay(text); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return audio.Buffer{}, ctx.Err()
			case <-t.C:
			}
		}
	}
	if err != nil {
		return audio.Buffer{}, err
	}
	if rate == 0 {
		rate = 16000
	}
	return audio.Buffer{PCM: []byte(text), SampleRate: rate, Channels: 1}, nil
}

// ListVoices returns Voices.
func (s *Synthesizer) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Voices, nil
}

// CallCount returns the number of Synthesize calls.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// MaxInFlight returns the highest number of concurrent Synthesize calls
// observed.
func (s *Synthesizer) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

var (
	_ tts.Synthesizer = (*Synthesizer)(nil)
	_ tts.VoiceLister = (*Synthesizer)(nil)
)
