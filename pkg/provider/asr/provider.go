// Package asr defines the Engine interface for speech recognition backends
// and the digit-normalization helpers shared by all of them.
//
// An engine transcribes a complete mono float32 clip and reports the
// recognized text together with per-token timestamps. Digit extraction and
// timestamp matching live here rather than in the backends so every engine
// produces the same normalized view of an utterance.
//
// Engine handles are NOT safe for concurrent use. Callers that serve
// multiple sessions must hold one handle per worker; see the infer pool.
package asr

import "context"

// Token is a single recognized token with its time span in seconds,
// relative to the start of the clip.
type Token struct {
	// Text is the raw token as emitted by the model.
	Text string

	// Start is the token onset in seconds.
	Start float64

	// End is the token offset in seconds. Backends without native end
	// times use the next token's onset, or Start + 0.3s for the last token.
	End float64
}

// Result is the outcome of transcribing one clip.
type Result struct {
	// Text is the raw recognized text, whitespace-trimmed.
	Text string

	// Tokens holds per-token timestamps in clip order. May be empty when
	// the backend produced no alignment; digit timestamps are then
	// estimated from text position.
	Tokens []Token
}

// Engine transcribes complete audio clips.
//
// A handle is not safe for concurrent use: each worker needs its own.
// Close releases model resources; the handle must not be used afterwards.
type Engine interface {
	// Transcribe recognizes the given mono float32 samples. The clip is
	// processed as a whole; ctx is checked before the (non-interruptible)
	// inference call starts.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (*Result, error)

	// Close releases the model handle. Calling Close more than once is safe.
	Close() error
}
