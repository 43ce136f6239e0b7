package pipeline

import "errors"

// Sentinel errors for the pipeline stages. The session layer maps these
// to wire error codes; anything else becomes an internal error.
var (
	// ErrDecode means the uploaded payload could not be decoded as audio.
	ErrDecode = errors.New("pipeline: audio decode failed")

	// ErrInvalidAudio means the clip decoded fine but violates the
	// duration bounds.
	ErrInvalidAudio = errors.New("pipeline: invalid audio duration")

	// ErrNoSpeech means the voice activity gate found no speech in the clip.
	ErrNoSpeech = errors.New("pipeline: no speech detected")

	// ErrASRFailed means the recognition engine itself failed.
	ErrASRFailed = errors.New("pipeline: speech recognition failed")

	// ErrSegmentation means the recognized digits could not be cut into
	// one slice per prompted digit.
	ErrSegmentation = errors.New("pipeline: digit segmentation failed")
)
