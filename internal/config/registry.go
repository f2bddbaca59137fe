package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/vocalis/pkg/journal"
	"github.com/MrWong99/vocalis/pkg/provider/llm"
	"github.com/MrWong99/vocalis/pkg/provider/responder"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ResponderDeps are the already-built collaborators a responder factory may
// use. Fields are nil when not configured.
type ResponderDeps struct {
	// LLM is the (possibly failover-wrapped) chat model.
	LLM llm.Provider

	// Journal records turns; the chat responder replays it as history.
	Journal journal.Store

	// JournalLimit is the number of entries replayed.
	JournalLimit int

	// ContextDir is the claude CLI working directory.
	ContextDir string
}

// factories is a name-to-constructor table for one provider kind.
type factories[T any] struct {
	kind string
	m    map[string]T
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]T)}
}

func (f factories[T]) lookup(name string) (T, error) {
	fn, ok := f.m[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return fn, nil
}

func (f factories[T]) names() []string {
	return slices.Sorted(maps.Keys(f.m))
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	transcriber factories[func(ProviderEntry) (stt.Transcriber, error)]
	synthesizer factories[func(ProviderEntry) (tts.Synthesizer, error)]
	llm         factories[func(ProviderEntry) (llm.Provider, error)]
	responder   factories[func(ProviderEntry, ResponderDeps) (responder.Responder, error)]
	vad         factories[func(VADConfig) (vad.Engine, error)]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcriber: newFactories[func(ProviderEntry) (stt.Transcriber, error)]("stt"),
		synthesizer: newFactories[func(ProviderEntry) (tts.Synthesizer, error)]("tts"),
		llm:         newFactories[func(ProviderEntry) (llm.Provider, error)]("llm"),
		responder:   newFactories[func(ProviderEntry, ResponderDeps) (responder.Responder, error)]("responder"),
		vad:         newFactories[func(VADConfig) (vad.Engine, error)]("vad"),
	}
}

// RegisterTranscriber registers a speech-to-text factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber.m[name] = factory
}

// RegisterSynthesizer registers a text-to-speech factory under name.
func (r *Registry) RegisterSynthesizer(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthesizer.m[name] = factory
}

// RegisterLLM registers a chat model factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterResponder registers a responder factory under name.
func (r *Registry) RegisterResponder(name string, factory func(ProviderEntry, ResponderDeps) (responder.Responder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responder.m[name] = factory
}

// RegisterVAD registers a speech-probability engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(VADConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad.m[name] = factory
}

// CreateTranscriber instantiates the transcriber registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, err := r.transcriber.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateSynthesizer instantiates the synthesizer registered under entry.Name.
func (r *Registry) CreateSynthesizer(entry ProviderEntry) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, err := r.synthesizer.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateLLM instantiates the chat model registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateResponder instantiates the responder registered under entry.Name.
func (r *Registry) CreateResponder(entry ProviderEntry, deps ResponderDeps) (responder.Responder, error) {
	r.mu.RLock()
	factory, err := r.responder.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry, deps)
}

// CreateVAD instantiates the engine registered under cfg.Engine.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, err := r.vad.lookup(cfg.Engine)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(cfg)
}

// Names returns the registered names for kind ("stt", "tts", "llm",
// "responder", "vad"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return r.transcriber.names()
	case "tts":
		return r.synthesizer.names()
	case "llm":
		return r.llm.names()
	case "responder":
		return r.responder.names()
	case "vad":
		return r.vad.names()
	}
	return nil
}
