// Package mock provides a test double for the asr package interfaces.
//
// Queue Result values in Results to script successive Transcribe calls;
// the last entry repeats once the queue is exhausted. Inspect
// TranscribeCalls to verify the audio that was submitted.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxauth/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the clip passed to Transcribe.
	Samples []float32

	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Engine is a mock implementation of asr.Engine.
type Engine struct {
	mu sync.Mutex

	// Results are returned by successive Transcribe calls in order. When
	// the queue runs out the last entry is repeated. A nil or empty queue
	// yields an empty Result.
	Results []*asr.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// Transcribe records the call and returns the next scripted Result.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make([]float32, len(samples))
	copy(cp, samples)
	e.TranscribeCalls = append(e.TranscribeCalls, TranscribeCall{Samples: cp, SampleRate: sampleRate})

	if e.TranscribeErr != nil {
		return nil, e.TranscribeErr
	}
	if len(e.Results) == 0 {
		return &asr.Result{}, nil
	}
	res := e.Results[min(e.next, len(e.Results)-1)]
	e.next++
	if res == nil {
		return &asr.Result{}, nil
	}
	return res, nil
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// ResetCalls clears all recorded call history and rewinds the result
// queue. Thread-safe.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TranscribeCalls = nil
	e.CloseCallCount = 0
	e.next = 0
}

// Ensure Engine implements asr.Engine at compile time.
var _ asr.Engine = (*Engine)(nil)
