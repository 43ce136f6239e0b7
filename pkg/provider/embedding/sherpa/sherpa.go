// Package sherpa implements the embedding.Extractor interface on top of a
// sherpa-onnx speaker-embedding model (e.g. CAM++ or ECAPA-TDNN).
package sherpa

import (
	"errors"
	"fmt"

	sherpaonnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/MrWong99/voxauth/pkg/provider/embedding"
)

// Config holds the speaker model path and runtime settings.
type Config struct {
	// Model is the path to the speaker-embedding ONNX model file.
	Model string

	// NumThreads is the ONNX runtime thread count. Values < 1 default to 1.
	NumThreads int
}

// Extractor wraps one sherpa-onnx speaker-embedding handle.
//
// Not safe for concurrent use. Hold one Extractor per inference worker.
type Extractor struct {
	ex  *sherpaonnx.SpeakerEmbeddingExtractor
	dim int
}

var _ embedding.Extractor = (*Extractor)(nil)

// New loads the speaker-embedding model and returns a ready Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.Model == "" {
		return nil, errors.New("sherpa: speaker model path is required")
	}
	threads := cfg.NumThreads
	if threads < 1 {
		threads = 1
	}

	ex := sherpaonnx.NewSpeakerEmbeddingExtractor(&sherpaonnx.SpeakerEmbeddingExtractorConfig{
		Model:      cfg.Model,
		NumThreads: threads,
		Provider:   "cpu",
	})
	if ex == nil {
		return nil, fmt.Errorf("sherpa: load speaker model %q failed", cfg.Model)
	}
	return &Extractor{ex: ex, dim: ex.Dim()}, nil
}

// Embed computes the raw (unnormalized) embedding for the clip.
func (e *Extractor) Embed(samples []float32, sampleRate int) ([]float32, error) {
	if e.ex == nil {
		return nil, errors.New("sherpa: extractor is closed")
	}

	stream := e.ex.CreateStream()
	defer sherpaonnx.DeleteOnlineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	stream.InputFinished()

	if !e.ex.IsReady(stream) {
		return nil, fmt.Errorf("sherpa: clip too short for embedding (%d samples)", len(samples))
	}
	vec := e.ex.Compute(stream)
	if len(vec) == 0 {
		return nil, errors.New("sherpa: embedding computation produced no output")
	}
	return vec, nil
}

// Dim returns the embedding dimension of the loaded model.
func (e *Extractor) Dim() int { return e.dim }

// Close releases the extractor handle.
func (e *Extractor) Close() error {
	if e.ex != nil {
		sherpaonnx.DeleteSpeakerEmbeddingExtractor(e.ex)
		e.ex = nil
	}
	return nil
}
