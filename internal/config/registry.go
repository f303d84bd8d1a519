package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/llm"
	"github.com/MrWong99/vigil/pkg/provider/stt"
	"github.com/MrWong99/vigil/pkg/provider/tts"
	"github.com/MrWong99/vigil/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is a named set of constructors for one provider kind.
type factories[T any] struct {
	kind string
	m    map[string]func(ProviderEntry) (T, error)
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]func(ProviderEntry) (T, error))}
}

func (f factories[T]) create(entry ProviderEntry, mu *sync.RWMutex) (T, error) {
	mu.RLock()
	factory, ok := f.m[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to constructors, one namespace per kind. The
// binary registers its built-in providers at startup; embedders may add their
// own before loading a config that names them. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   factories[llm.Provider]
	stt   factories[stt.Provider]
	tts   factories[tts.Provider]
	vad   factories[vad.Engine]
	audio factories[audio.Backend]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   newFactories[llm.Provider]("llm"),
		stt:   newFactories[stt.Provider]("stt"),
		tts:   newFactories[tts.Provider]("tts"),
		vad:   newFactories[vad.Engine]("vad"),
		audio: newFactories[audio.Backend]("audio"),
	}
}

func register[T any](r *Registry, f factories[T], name string, factory func(ProviderEntry) (T, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.m[name] = factory
}

// RegisterLLM registers an LLM factory. A later registration under the same
// name replaces the earlier one; the same holds for every kind.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(r, r.llm, name, factory)
}

// RegisterSTT registers a speech-to-text factory.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	register(r, r.stt, name, factory)
}

// RegisterTTS registers a text-to-speech factory.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	register(r, r.tts, name, factory)
}

// RegisterVAD registers a voice activity engine factory.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	register(r, r.vad, name, factory)
}

// RegisterAudio registers an audio backend. Backends take no entry; device
// selection happens when capture and playback are opened.
func (r *Registry) RegisterAudio(name string, factory func() (audio.Backend, error)) {
	register(r, r.audio, name, func(ProviderEntry) (audio.Backend, error) { return factory() })
}

// CreateLLM builds the LLM provider named by entry.Name. It returns an error
// wrapping [ErrProviderNotRegistered] for an unknown name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry, &r.mu)
}

// CreateSTT builds the speech-to-text provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry, &r.mu)
}

// CreateTTS builds the text-to-speech provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry, &r.mu)
}

// CreateVAD builds the voice activity engine named by entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return r.vad.create(entry, &r.mu)
}

// CreateAudio opens the audio backend registered under name.
func (r *Registry) CreateAudio(name string) (audio.Backend, error) {
	return r.audio.create(ProviderEntry{Name: name}, &r.mu)
}

// Names returns the sorted names registered for kind ("llm", "stt", "tts",
// "vad" or "audio"). An unknown kind yields nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "llm":
		return slices.Sorted(maps.Keys(r.llm.m))
	case "stt":
		return slices.Sorted(maps.Keys(r.stt.m))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts.m))
	case "vad":
		return slices.Sorted(maps.Keys(r.vad.m))
	case "audio":
		return slices.Sorted(maps.Keys(r.audio.m))
	}
	return nil
}
