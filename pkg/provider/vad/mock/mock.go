// Package mock provides a test double for the vad package interfaces.
//
// Set Spans to the regions every Detect call should report, or DetectErr
// to force failures. Inspect DetectCalls to verify the audio that was
// submitted.
package mock

import (
	"sync"

	"github.com/MrWong99/voxauth/pkg/provider/vad"
)

// DetectCall records a single invocation of Detector.Detect.
type DetectCall struct {
	// SampleCount is the clip length passed to Detect.
	SampleCount int

	// SampleRate is the rate passed to Detect.
	SampleRate int
}

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Spans is returned by every Detect call. Nil means "no speech".
	Spans []vad.Span

	// DetectErr, if non-nil, is returned by every Detect call.
	DetectErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// DetectCalls records every call to Detect in order.
	DetectCalls []DetectCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Detect records the call and returns Spans, DetectErr.
func (d *Detector) Detect(samples []float32, sampleRate int) ([]vad.Span, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DetectCalls = append(d.DetectCalls, DetectCall{SampleCount: len(samples), SampleRate: sampleRate})
	if d.DetectErr != nil {
		return nil, d.DetectErr
	}
	return d.Spans, nil
}

// Close records the call and returns CloseErr.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	return d.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (d *Detector) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DetectCalls = nil
	d.CloseCallCount = 0
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
