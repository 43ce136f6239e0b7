// Package sherpa implements the vad.Detector interface on top of the
// sherpa-onnx Silero VAD model.
package sherpa

import (
	"errors"
	"fmt"

	sherpaonnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/MrWong99/voxauth/pkg/provider/vad"
)

// Defaults match the Silero model's recommended operating point at 16 kHz.
const (
	defaultThreshold  = 0.5
	defaultMinSilence = 0.25
	defaultMinSpeech  = 0.25
	defaultWindowSize = 512
	defaultMaxSpeech  = 20.0

	// bufferSeconds is the internal VAD ring buffer capacity. Clips are
	// bounded to 10s upstream, so this never overflows.
	bufferSeconds = 30.0
)

// Config holds the Silero model path and detection thresholds.
type Config struct {
	// Model is the path to the silero_vad.onnx model file.
	Model string

	// Threshold is the speech probability above which a window counts as
	// speech. Zero means the default (0.5).
	Threshold float32

	// MinSilenceDuration is the silence gap (seconds) that closes a speech
	// region. Zero means the default (0.25).
	MinSilenceDuration float32

	// MinSpeechDuration is the minimum region length (seconds) reported as
	// speech. Zero means the default (0.25).
	MinSpeechDuration float32

	// WindowSize is the per-step window in samples. Zero means the
	// model-native 512.
	WindowSize int

	// SampleRate is the clip sample rate the detector is configured for.
	SampleRate int

	// NumThreads is the ONNX runtime thread count. Values < 1 default to 1.
	NumThreads int
}

// Detector wraps one sherpa-onnx Silero VAD handle.
//
// Not safe for concurrent use: the handle keeps windowed state between
// AcceptWaveform calls. Hold one Detector per inference worker.
type Detector struct {
	vad        *sherpaonnx.VoiceActivityDetector
	windowSize int
	sampleRate int
}

var _ vad.Detector = (*Detector)(nil)

// New loads the Silero VAD model and returns a ready Detector.
func New(cfg Config) (*Detector, error) {
	if cfg.Model == "" {
		return nil, errors.New("sherpa: vad model path is required")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sherpa: invalid vad sample rate %d", cfg.SampleRate)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.MinSilenceDuration == 0 {
		cfg.MinSilenceDuration = defaultMinSilence
	}
	if cfg.MinSpeechDuration == 0 {
		cfg.MinSpeechDuration = defaultMinSpeech
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = defaultWindowSize
	}
	threads := cfg.NumThreads
	if threads < 1 {
		threads = 1
	}

	vc := &sherpaonnx.VadModelConfig{}
	vc.SileroVad.Model = cfg.Model
	vc.SileroVad.Threshold = cfg.Threshold
	vc.SileroVad.MinSilenceDuration = cfg.MinSilenceDuration
	vc.SileroVad.MinSpeechDuration = cfg.MinSpeechDuration
	vc.SileroVad.MaxSpeechDuration = defaultMaxSpeech
	vc.SileroVad.WindowSize = cfg.WindowSize
	vc.SampleRate = cfg.SampleRate
	vc.NumThreads = threads

	v := sherpaonnx.NewVoiceActivityDetector(vc, bufferSeconds)
	if v == nil {
		return nil, fmt.Errorf("sherpa: load vad model %q failed", cfg.Model)
	}
	return &Detector{vad: v, windowSize: cfg.WindowSize, sampleRate: cfg.SampleRate}, nil
}

// Detect feeds the clip through the Silero model window by window and
// collects the detected speech regions.
func (d *Detector) Detect(samples []float32, sampleRate int) ([]vad.Span, error) {
	if d.vad == nil {
		return nil, errors.New("sherpa: detector is closed")
	}
	if sampleRate != d.sampleRate {
		return nil, fmt.Errorf("sherpa: clip rate %d does not match detector rate %d", sampleRate, d.sampleRate)
	}

	d.vad.Clear()
	for off := 0; off < len(samples); off += d.windowSize {
		end := min(off+d.windowSize, len(samples))
		d.vad.AcceptWaveform(samples[off:end])
	}
	d.vad.Flush()

	var spans []vad.Span
	for !d.vad.IsEmpty() {
		seg := d.vad.Front()
		d.vad.Pop()
		start := float64(seg.Start) / float64(sampleRate)
		spans = append(spans, vad.Span{
			Start: start,
			End:   start + float64(len(seg.Samples))/float64(sampleRate),
		})
	}
	return spans, nil
}

// Close releases the VAD handle.
func (d *Detector) Close() error {
	if d.vad != nil {
		sherpaonnx.DeleteVoiceActivityDetector(d.vad)
		d.vad = nil
	}
	return nil
}
