// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that models are created with the expected Config.
// Use Model to script per-frame probabilities and inspect the frames that
// were scored.
//
// Example:
//
//	m := &mock.Model{Probs: []float64{0.1, 0.9, 0.9, 0.2}}
//	eng := &mock.Engine{Model: m}
//	model, _ := eng.NewModel(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

// NewModelCall records a single invocation of Engine.NewModel.
type NewModelCall struct {
	// Cfg is the Config passed to NewModel.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Model is returned by NewModel. If nil, NewModel returns a new default
	// Model.
	Model vad.Model

	// NewModelErr, if non-nil, is returned as the error from NewModel.
	NewModelErr error

	// NewModelCalls records every call to NewModel in order.
	NewModelCalls []NewModelCall
}

// NewModel records the call and returns Model, NewModelErr.
func (e *Engine) NewModel(cfg vad.Config) (vad.Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewModelCalls = append(e.NewModelCalls, NewModelCall{Cfg: cfg})
	if e.NewModelErr != nil {
		return nil, e.NewModelErr
	}
	if e.Model != nil {
		return e.Model, nil
	}
	return &Model{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Model is a scripted vad.Model. Each Probability call consumes the next
// value from Probs; once exhausted, Default is returned.
type Model struct {
	mu sync.Mutex

	// Probs is the per-frame probability script.
	Probs []float64

	// Default is returned after Probs is exhausted.
	Default float64

	// Func, when set, overrides Probs and Default.
	Func func(frame audio.Frame) float64

	// Err, if non-nil, is returned by every Probability call.
	Err error

	// --- Call records ---

	// Frames records every scored frame in order.
	Frames []audio.Frame

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	pos int
}

// Probability records the call and returns the next scripted value.
func (m *Model) Probability(frame audio.Frame) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames = append(m.Frames, frame)
	if m.Err != nil {
		return 0, m.Err
	}
	if m.Func != nil {
		return m.Func(frame), nil
	}
	if m.pos < len(m.Probs) {
		p := m.Probs[m.pos]
		m.pos++
		return p, nil
	}
	return m.Default, nil
}

// Reset records the call by incrementing ResetCallCount.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCallCount++
}

// Close records the call.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCallCount++
	return nil
}

var _ vad.Model = (*Model)(nil)
