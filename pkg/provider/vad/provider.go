// Package vad defines the Detector interface for voice activity detection
// backends.
//
// A detector analyses a complete clip and reports the speech regions it
// contains. The pipeline uses it as a gate: a clip with no speech regions
// is rejected before any recognition work is spent on it.
//
// Detector handles are NOT safe for concurrent use; hold one per worker.
package vad

// Span is a detected speech region, in seconds from the start of the clip.
type Span struct {
	Start float64
	End   float64
}

// Detector finds speech regions in complete audio clips.
type Detector interface {
	// Detect returns the speech spans found in the given mono float32
	// clip, in order. An empty result means the clip is silence.
	Detect(samples []float32, sampleRate int) ([]Span, error)

	// Close releases the model handle. Calling Close more than once is safe.
	Close() error
}
