// Package sherpa implements the asr.Engine interface on top of the
// sherpa-onnx SenseVoice offline recognizer. SenseVoice emits per-token
// timestamps, which the segmenter needs to cut per-digit slices.
package sherpa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sherpaonnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/MrWong99/voxauth/pkg/provider/asr"
)

// Config holds the SenseVoice model paths and runtime settings.
type Config struct {
	// Model is the path to the SenseVoice ONNX model file.
	Model string

	// Tokens is the path to the tokens.txt vocabulary file.
	Tokens string

	// Language hints the recognition language (e.g. "ja"). Empty means
	// auto-detect.
	Language string

	// NumThreads is the ONNX runtime thread count for this handle.
	// Values < 1 default to 1.
	NumThreads int
}

// Engine wraps one sherpa-onnx offline recognizer handle.
//
// Not safe for concurrent use: the underlying C handle keeps per-stream
// state. Hold one Engine per inference worker.
type Engine struct {
	rec *sherpaonnx.OfflineRecognizer
}

var _ asr.Engine = (*Engine)(nil)

// New loads the SenseVoice model and returns a ready Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Model == "" || cfg.Tokens == "" {
		return nil, errors.New("sherpa: asr model and tokens paths are required")
	}
	threads := cfg.NumThreads
	if threads < 1 {
		threads = 1
	}

	rc := &sherpaonnx.OfflineRecognizerConfig{}
	rc.ModelConfig.SenseVoice.Model = cfg.Model
	rc.ModelConfig.SenseVoice.Language = cfg.Language
	rc.ModelConfig.SenseVoice.UseInverseTextNormalization = 1
	rc.ModelConfig.Tokens = cfg.Tokens
	rc.ModelConfig.NumThreads = threads
	rc.ModelConfig.Provider = "cpu"
	rc.DecodingMethod = "greedy_search"

	rec := sherpaonnx.NewOfflineRecognizer(rc)
	if rec == nil {
		return nil, fmt.Errorf("sherpa: load asr model %q failed", cfg.Model)
	}
	return &Engine{rec: rec}, nil
}

// Transcribe recognizes the clip and converts the SenseVoice token/timestamp
// arrays into [asr.Token] spans. Each token ends where the next one starts;
// the last token gets a 0.3s estimated tail, matching the digit estimator.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.rec == nil {
		return nil, errors.New("sherpa: engine is closed")
	}

	stream := sherpaonnx.NewOfflineStream(e.rec)
	if stream == nil {
		return nil, errors.New("sherpa: create stream failed")
	}
	defer sherpaonnx.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	e.rec.Decode(stream)

	res := stream.GetResult()
	out := &asr.Result{Text: strings.TrimSpace(res.Text)}

	for i, tok := range res.Tokens {
		var start float64
		if i < len(res.Timestamps) {
			start = float64(res.Timestamps[i])
		}
		end := start + 0.3
		if i+1 < len(res.Timestamps) {
			end = float64(res.Timestamps[i+1])
		}
		out.Tokens = append(out.Tokens, asr.Token{Text: tok, Start: start, End: end})
	}
	return out, nil
}

// Close releases the recognizer handle.
func (e *Engine) Close() error {
	if e.rec != nil {
		sherpaonnx.DeleteOfflineRecognizer(e.rec)
		e.rec = nil
	}
	return nil
}
