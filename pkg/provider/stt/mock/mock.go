// Package mock provides a scripted [stt.Transcriber] for tests.
//
// Texts are returned in order, one per call; once exhausted the Fallback text
// (or [stt.ErrEmptyTranscript] when Fallback is empty) is returned. Set
// Delay to simulate backend latency; the delay honours ctx.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Frames is the number of frames in the utterance.
	Frames int
}

// Transcriber is a mock implementation of [stt.Transcriber].
type Transcriber struct {
	mu sync.Mutex

	// Texts are returned in call order.
	Texts []string

	// Fallback is returned after Texts is exhausted.
	Fallback string

	// Err, when non-nil, is returned by every call instead of text.
	Err error

	// Delay is waited before answering.
	Delay time.Duration

	// Calls records every Transcribe invocation.
	Calls []TranscribeCall

	next int
}

// NewTranscriber returns a Transcriber that answers with texts in order.
func NewTranscriber(texts ...string) *Transcriber {
	return &Transcriber{Texts: texts}
}

// Transcribe implements [stt.Transcriber].
func (m *Transcriber) Transcribe(ctx context.Context, u *audio.Utterance) (string, error) {
	m.mu.Lock()
	frames := 0
	if u != nil {
		frames = u.Len()
	}
	m.Calls = append(m.Calls, TranscribeCall{Frames: frames})
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if m.next < len(m.Texts) {
		text := m.Texts[m.next]
		m.next++
		if text == "" {
			return "", stt.ErrEmptyTranscript
		}
		return text, nil
	}
	if m.Fallback == "" {
		return "", stt.ErrEmptyTranscript
	}
	return m.Fallback, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ stt.Transcriber = (*Transcriber)(nil)
