// This file contains the Engine implementation backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

// Package whisper implements the asr.Engine interface using whisper.cpp.
// It is an alternative to the SenseVoice backend for deployments that
// already ship Whisper models; token timestamps come from whisper.cpp's
// token-level alignment.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxauth/pkg/provider/asr"
)

// defaultLanguage is used when no language option is given.
const defaultLanguage = "ja"

// Compile-time assertion that Engine satisfies asr.Engine.
var _ asr.Engine = (*Engine)(nil)

// Engine implements asr.Engine using whisper.cpp Go bindings (CGO). The
// model is loaded once; each Transcribe call creates a fresh whisper
// context, so the handle itself must not be shared across workers.
type Engine struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the transcription language code (e.g. "ja", "en").
// Defaults to "ja".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// New loads the whisper.cpp model from the given file path. The caller
// must call Close when the engine is no longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	e := &Engine{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Transcribe runs whisper.cpp inference over the whole clip and flattens
// the per-segment token alignment into [asr.Token] spans.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.model == nil {
		return nil, errors.New("whisper: engine is closed")
	}
	_ = sampleRate // whisper.cpp expects 16 kHz input; the decoder guarantees it

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		return nil, fmt.Errorf("whisper: set language %q: %w", e.language, err)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	res := &asr.Result{}
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			text := strings.TrimSpace(tok.Text)
			if text == "" || strings.HasPrefix(text, "[") {
				continue // skip special tokens like [_BEG_]
			}
			res.Tokens = append(res.Tokens, asr.Token{
				Text:  text,
				Start: tok.Start.Seconds(),
				End:   tok.End.Seconds(),
			})
		}
	}
	res.Text = strings.Join(parts, " ")
	return res, nil
}

// Close releases the whisper model.
func (e *Engine) Close() error {
	if e.model != nil {
		err := e.model.Close()
		e.model = nil
		return err
	}
	return nil
}
