// Package audio decodes the audio clips clients upload into the mono
// float32 form the inference models consume.
//
// Two container formats are accepted: WebM with an Opus track (what
// browser MediaRecorder produces) and 16-bit PCM WAV. The format is
// sniffed from the leading bytes, so clients do not declare it. Output is
// always mono at the requested target rate.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned when the payload is neither a WebM nor
// a RIFF/WAV container.
var ErrUnsupportedFormat = errors.New("audio: unsupported container format")

// ebmlMagic is the EBML document header that opens every WebM file.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// riffMagic opens every WAV file.
var riffMagic = []byte("RIFF")

// Decode sniffs the container format of data, decodes it, and returns
// mono float32 samples resampled to targetRate. Malformed or truncated
// payloads return an error; callers treat any error here as a client-side
// decode failure.
func Decode(data []byte, targetRate int) ([]float32, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("audio: invalid target rate %d", targetRate)
	}
	switch {
	case hasPrefix(data, ebmlMagic):
		return decodeWebM(data, targetRate)
	case hasPrefix(data, riffMagic):
		return decodeWAV(data, targetRate)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// Duration returns the clip length in seconds.
func Duration(samples []float32, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(samples)) / float64(sampleRate)
}

func hasPrefix(data, magic []byte) bool {
	if len(data) < len(magic) {
		return false
	}
	for i := range magic {
		if data[i] != magic[i] {
			return false
		}
	}
	return true
}

// int16LE reinterprets little-endian PCM bytes as int16 samples. A
// trailing odd byte is ignored.
func int16LE(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}
