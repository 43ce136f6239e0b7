package audio

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

// decodeWAV parses a 16-bit PCM WAV payload and returns mono float32
// samples at targetRate.
func decodeWAV(data []byte, targetRate int) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audio: not a valid wav file")
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("audio: wav format %d is not PCM", dec.WavAudioFormat)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("audio: wav bit depth %d is not 16", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read wav pcm: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("audio: wav contains no audio data")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	pcm := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		pcm[i] = int16(s)
	}

	mono := monoFloat32(pcm, channels)
	return Resample(mono, buf.Format.SampleRate, targetRate), nil
}
