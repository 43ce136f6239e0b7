package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voxauth/pkg/provider/asr"
	"github.com/MrWong99/voxauth/pkg/provider/embedding"
	"github.com/MrWong99/voxauth/pkg/provider/vad"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to their constructor functions for each model
// kind. Model handles are not shareable across workers, so factories are
// called once per inference-pool slot. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	asr     map[string]func(ASRConfig) (asr.Engine, error)
	vad     map[string]func(VADConfig) (vad.Detector, error)
	speaker map[string]func(SpeakerConfig) (embedding.Extractor, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:     make(map[string]func(ASRConfig) (asr.Engine, error)),
		vad:     make(map[string]func(VADConfig) (vad.Detector, error)),
		speaker: make(map[string]func(SpeakerConfig) (embedding.Extractor, error)),
	}
}

// RegisterASR registers an ASR engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory func(ASRConfig) (asr.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterVAD registers a voice-activity detector factory under name.
func (r *Registry) RegisterVAD(name string, factory func(VADConfig) (vad.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSpeaker registers a speaker-embedding extractor factory under name.
func (r *Registry) RegisterSpeaker(name string, factory func(SpeakerConfig) (embedding.Extractor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaker[name] = factory
}

// CreateASR instantiates a fresh ASR engine handle using the factory
// registered under cfg.Name. Returns [ErrBackendNotRegistered] if no factory
// has been registered for that name.
func (r *Registry) CreateASR(cfg ASRConfig) (asr.Engine, error) {
	r.mu.RLock()
	factory, ok := r.asr[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrBackendNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateVAD instantiates a fresh detector handle using the factory registered under name.
func (r *Registry) CreateVAD(name string, cfg VADConfig) (vad.Detector, error) {
	r.mu.RLock()
	factory, ok := r.vad[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrBackendNotRegistered, name)
	}
	return factory(cfg)
}

// CreateSpeaker instantiates a fresh extractor handle using the factory registered under name.
func (r *Registry) CreateSpeaker(name string, cfg SpeakerConfig) (embedding.Extractor, error) {
	r.mu.RLock()
	factory, ok := r.speaker[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speaker/%q", ErrBackendNotRegistered, name)
	}
	return factory(cfg)
}
