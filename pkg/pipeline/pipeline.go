// Package pipeline turns an uploaded audio clip into per-digit speaker
// embeddings and verification scores. One call runs the full chain:
// decode, duration check, voice-activity gate, speech recognition, digit
// segmentation, and embedding extraction. Inference handles are checked
// out of bounded pools per call, so a Pipeline is safe for concurrent use.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/voxauth/internal/infer"
	"github.com/MrWong99/voxauth/internal/observe"
	"github.com/MrWong99/voxauth/pkg/audio"
	"github.com/MrWong99/voxauth/pkg/provider/asr"
	"github.com/MrWong99/voxauth/pkg/provider/embedding"
	"github.com/MrWong99/voxauth/pkg/provider/vad"
)

// Config holds the audio-processing parameters.
type Config struct {
	// SampleRate is the internal processing rate in Hz. All clips are
	// resampled to this rate after decoding.
	SampleRate int

	// MinDuration and MaxDuration bound the accepted clip length in
	// seconds, inclusive.
	MinDuration float64
	MaxDuration float64

	// SegmentPadding is added on both sides of each digit span, in
	// seconds, before cutting.
	SegmentPadding float64

	// NoOverlap clamps each slice's right edge to the next digit's start
	// so adjacent slices never share samples.
	NoOverlap bool
}

// DefaultConfig returns the standard processing parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		MinDuration:    1.0,
		MaxDuration:    10.0,
		SegmentPadding: 0.10,
	}
}

// DigitEmbedding is the speaker embedding extracted from one digit slice.
// Order matters: a prompt may repeat a digit, so callers accumulate these
// as a sequence rather than a map.
type DigitEmbedding struct {
	Digit  byte
	Vector []float32
}

// EnrollmentResult is the outcome of processing one enrollment clip.
type EnrollmentResult struct {
	// Text is the raw recognized transcript.
	Text string

	// Digits is the normalized digit string heard in the clip.
	Digits string

	// Matched reports whether Digits equals the prompted digit string.
	Matched bool

	// Embeddings holds one entry per prompted digit, in spoken order.
	// Empty when Matched is false.
	Embeddings []DigitEmbedding
}

// VerificationResult is the outcome of processing one verification clip.
type VerificationResult struct {
	// Text is the raw recognized transcript.
	Text string

	// Digits is the normalized digit string heard in the clip.
	Digits string

	// Matched reports whether Digits equals the challenge digit string.
	Matched bool

	// DigitScores maps each challenge digit to its cosine similarity
	// against the enrolled centroid. When a digit repeats, the later
	// position's score wins. Empty when Matched is false.
	DigitScores map[string]float32

	// Score is the mean similarity across all challenge positions.
	Score float32

	// Authenticated reports whether the clip passed: digits matched the
	// challenge and Score reached the threshold.
	Authenticated bool
}

// Pipeline runs the audio-processing chain using pooled inference handles.
type Pipeline struct {
	cfg     Config
	asrPool *infer.Pool[asr.Engine]
	vadPool *infer.Pool[vad.Detector]
	embPool *infer.Pool[embedding.Extractor]
	metrics *observe.Metrics
}

// New builds a Pipeline over the given inference pools. A nil metrics
// falls back to [observe.DefaultMetrics].
func New(cfg Config, asrPool *infer.Pool[asr.Engine], vadPool *infer.Pool[vad.Detector], embPool *infer.Pool[embedding.Extractor], metrics *observe.Metrics) *Pipeline {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		cfg:     cfg,
		asrPool: asrPool,
		vadPool: vadPool,
		embPool: embPool,
		metrics: metrics,
	}
}

// ProcessEnrollment decodes the clip, checks that the speaker read the
// prompted digits, and extracts one embedding per prompted digit. A
// mismatch between the heard digits and the prompt is not an error: the
// result carries Matched=false so the caller can re-prompt.
func (p *Pipeline) ProcessEnrollment(ctx context.Context, data []byte, prompt string) (*EnrollmentResult, error) {
	start := time.Now()
	defer func() {
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}()

	samples, res, digits, err := p.analyze(ctx, data)
	if err != nil {
		return nil, err
	}
	out := &EnrollmentResult{Text: res.Text, Digits: digits}
	if digits != prompt {
		return out, nil
	}
	out.Matched = true

	slices, err := p.cut(samples, res, prompt)
	if err != nil {
		p.metrics.RecordPipelineError(ctx, "segment", "SEGMENTATION_FAILED")
		return nil, err
	}
	out.Embeddings, err = p.embed(ctx, slices)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessVerification decodes the clip, checks the spoken digits against
// the challenge, and scores each digit slice against the speaker's
// enrolled centroids. Authenticated is true only when the digits matched
// and the mean score reached threshold; a degenerate (non-finite or
// unscorable) slice contributes zero and forces failure.
func (p *Pipeline) ProcessVerification(ctx context.Context, data []byte, prompt string, centroids map[string][]float32, threshold float32) (*VerificationResult, error) {
	start := time.Now()
	defer func() {
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}()

	samples, res, digits, err := p.analyze(ctx, data)
	if err != nil {
		return nil, err
	}
	out := &VerificationResult{Text: res.Text, Digits: digits}
	if digits != prompt {
		return out, nil
	}
	out.Matched = true

	slices, err := p.cut(samples, res, prompt)
	if err != nil {
		p.metrics.RecordPipelineError(ctx, "segment", "SEGMENTATION_FAILED")
		return nil, err
	}
	embeds, err := p.embed(ctx, slices)
	if err != nil {
		return nil, err
	}

	out.DigitScores = make(map[string]float32, len(embeds))
	degenerate := false
	var sum float64
	for _, de := range embeds {
		digit := string(de.Digit)
		centroid, ok := centroids[digit]
		score := float32(0)
		if !ok || !finite(de.Vector) {
			degenerate = true
		} else {
			score = embedding.Cosine(de.Vector, centroid)
		}
		out.DigitScores[digit] = score
		sum += float64(score)
	}
	out.Score = float32(sum / float64(len(embeds)))
	out.Authenticated = !degenerate && out.Score >= threshold
	return out, nil
}

// analyze runs the shared front half of both flows: decode, duration
// check, voice-activity gate, and speech recognition.
func (p *Pipeline) analyze(ctx context.Context, data []byte) ([]float32, *asr.Result, string, error) {
	decodeStart := time.Now()
	samples, err := audio.Decode(data, p.cfg.SampleRate)
	p.metrics.DecodeDuration.Record(ctx, time.Since(decodeStart).Seconds())
	if err != nil {
		p.metrics.RecordPipelineError(ctx, "decode", "DECODE_ERROR")
		return nil, nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	dur := audio.Duration(samples, p.cfg.SampleRate)
	if dur < p.cfg.MinDuration || dur > p.cfg.MaxDuration {
		p.metrics.RecordPipelineError(ctx, "decode", "INVALID_AUDIO")
		return nil, nil, "", fmt.Errorf("%w: %.2fs outside [%.1f, %.1f]",
			ErrInvalidAudio, dur, p.cfg.MinDuration, p.cfg.MaxDuration)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, "", err
	}
	vadStart := time.Now()
	spans, err := p.detectSpeech(ctx, samples)
	p.metrics.VADDuration.Record(ctx, time.Since(vadStart).Seconds())
	if err != nil {
		p.metrics.RecordPipelineError(ctx, "vad", "INTERNAL_ERROR")
		return nil, nil, "", fmt.Errorf("pipeline: voice activity detection: %w", err)
	}
	if len(spans) == 0 {
		p.metrics.RecordPipelineError(ctx, "vad", "INVALID_AUDIO")
		return nil, nil, "", fmt.Errorf("%w: no speech in %.2fs clip", ErrNoSpeech, dur)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, "", err
	}
	asrStart := time.Now()
	res, err := p.transcribe(ctx, samples)
	p.metrics.ASRDuration.Record(ctx, time.Since(asrStart).Seconds())
	if err != nil {
		p.metrics.RecordPipelineError(ctx, "asr", "ASR_FAILED")
		return nil, nil, "", fmt.Errorf("%w: %w", ErrASRFailed, err)
	}

	return samples, res, asr.NormalizeDigits(res.Text), nil
}

// cut derives digit spans from the transcript and slices the clip.
func (p *Pipeline) cut(samples []float32, res *asr.Result, prompt string) ([]Slice, error) {
	spans := asr.DigitSpans(res)
	if err := validateSpans(spans, prompt); err != nil {
		return nil, err
	}
	return segment(samples, p.cfg.SampleRate, spans, p.cfg.SegmentPadding, p.cfg.NoOverlap)
}

// embed extracts one speaker embedding per slice, in order.
func (p *Pipeline) embed(ctx context.Context, slices []Slice) ([]DigitEmbedding, error) {
	embedStart := time.Now()
	defer func() {
		p.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	}()

	ex, err := p.embPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: acquire embedding extractor: %w", err)
	}
	defer p.embPool.Release(ex)

	out := make([]DigitEmbedding, 0, len(slices))
	for _, sl := range slices {
		vec, err := ex.Embed(sl.Samples, p.cfg.SampleRate)
		if err != nil {
			p.metrics.RecordPipelineError(ctx, "embedding", "INTERNAL_ERROR")
			return nil, fmt.Errorf("pipeline: embed digit %c: %w", sl.Digit, err)
		}
		out = append(out, DigitEmbedding{Digit: sl.Digit, Vector: vec})
	}
	return out, nil
}

func (p *Pipeline) detectSpeech(ctx context.Context, samples []float32) ([]vad.Span, error) {
	det, err := p.vadPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire detector: %w", err)
	}
	defer p.vadPool.Release(det)
	return det.Detect(samples, p.cfg.SampleRate)
}

func (p *Pipeline) transcribe(ctx context.Context, samples []float32) (*asr.Result, error) {
	eng, err := p.asrPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire engine: %w", err)
	}
	defer p.asrPool.Release(eng)
	return eng.Transcribe(ctx, samples, p.cfg.SampleRate)
}

// finite reports whether every element of v is a finite number.
func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return len(v) > 0
}
