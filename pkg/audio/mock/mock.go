// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for use in unit tests.
//
// Both mocks are safe for concurrent use. They record every call so that
// tests can assert on order and arguments, and they expose exported fields
// that the test can set to control behaviour.
//
// Typical usage:
//
//	src := mock.NewSource(frames...)
//	sink := &mock.Sink{PlayDelay: 5 * time.Millisecond}
//	... run the pipeline ...
//	if got := sink.Played(); len(got) != 3 { ... }
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a scripted [audio.Source]. It returns the queued frames in order,
// then either blocks until ctx is done (Hold) or returns io.EOF.
type Source struct {
	mu     sync.Mutex
	frames []audio.Frame
	pos    int
	closed bool
	pushed chan struct{}

	// Hold makes Read block until ctx is cancelled or Push adds frames once
	// the script is exhausted, instead of returning io.EOF. Live microphones behave this way.
	Hold bool

	// Interval, when non-zero, is slept before each frame to mimic a
	// real-time device.
	Interval time.Duration

	// ReadErr, when non-nil, is returned by every Read.
	ReadErr error

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSource returns a Source that yields frames in order.
func NewSource(frames ...audio.Frame) *Source {
	return &Source{frames: frames}
}

// Push appends frames to the script and wakes a Read held on an exhausted
// script.
func (s *Source) Push(frames ...audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
	if s.pushed != nil {
		close(s.pushed)
		s.pushed = nil
	}
}

// Read implements [audio.Source].
func (s *Source) Read(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	s.CallCountRead++
	if s.closed {
		s.mu.Unlock()
		return audio.Frame{}, audio.ErrClosed
	}
	if s.ReadErr != nil {
		err := s.ReadErr
		s.mu.Unlock()
		return audio.Frame{}, err
	}
	interval := s.Interval
	s.mu.Unlock()

	if interval > 0 {
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		}
	}

	for {
		s.mu.Lock()
		if s.pos < len(s.frames) {
			f := s.frames[s.pos]
			s.pos++
			s.mu.Unlock()
			return f, nil
		}
		if !s.Hold {
			s.mu.Unlock()
			return audio.Frame{}, io.EOF
		}
		if s.pushed == nil {
			s.pushed = make(chan struct{})
		}
		pushed := s.pushed
		s.mu.Unlock()

		select {
		case <-pushed:
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		}
	}
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closed = true
	return nil
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// PlayCall records a single [Sink.Play] invocation.
type PlayCall struct {
	// Buffer is the audio passed to Play.
	Buffer audio.Buffer
	// At is the wall-clock time Play was entered.
	At time.Time
}

// Sink is a recording [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// PlayDelay simulates device playback time. Play honours ctx and Stop
	// while waiting.
	PlayDelay time.Duration

	// PlayErr, when non-nil, is returned by every Play call (after recording).
	PlayErr error

	// OnPlay, when set, is invoked synchronously at the start of each Play.
	OnPlay func(buf audio.Buffer)

	// PlayCalls records every Play invocation in order.
	PlayCalls []PlayCall

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	stop chan struct{}
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, buf audio.Buffer) error {
	s.mu.Lock()
	s.PlayCalls = append(s.PlayCalls, PlayCall{Buffer: buf, At: time.Now()})
	if s.stop == nil {
		s.stop = make(chan struct{})
	}
	stop := s.stop
	delay := s.PlayDelay
	err := s.PlayErr
	onPlay := s.OnPlay
	s.mu.Unlock()

	if onPlay != nil {
		onPlay(buf)
	}
	if err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements [audio.Sink]. It releases any Play currently waiting on
// PlayDelay.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

// Played returns a copy of the buffers passed to Play, in call order.
func (s *Sink) Played() []audio.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Buffer, len(s.PlayCalls))
	for i, c := range s.PlayCalls {
		out[i] = c.Buffer
	}
	return out
}
