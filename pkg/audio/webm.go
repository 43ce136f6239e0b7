package audio

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
	"layeh.com/gopus"
)

const (
	// opusRate is the Opus decoder output rate. Opus always decodes at
	// 48 kHz regardless of the encoder input rate.
	opusRate = 48000

	// maxOpusFrame is the largest Opus frame in samples per channel
	// (120 ms at 48 kHz).
	maxOpusFrame = 5760
)

// decodeWebM demuxes a WebM container, decodes its Opus track, and
// returns mono float32 samples at targetRate.
func decodeWebM(data []byte, targetRate int) ([]float32, error) {
	var container struct {
		Header  webm.EBMLHeader `ebml:"EBML"`
		Segment webm.Segment    `ebml:"Segment"`
	}
	if err := ebml.Unmarshal(bytes.NewReader(data), &container); err != nil {
		return nil, fmt.Errorf("audio: parse webm: %w", err)
	}

	track, err := findOpusTrack(container.Segment.Tracks.TrackEntry)
	if err != nil {
		return nil, err
	}
	channels := 1
	if track.Audio != nil && track.Audio.Channels > 1 {
		channels = int(track.Audio.Channels)
	}

	dec, err := gopus.NewDecoder(opusRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}

	var pcm []int16
	for _, cluster := range container.Segment.Cluster {
		for _, block := range cluster.SimpleBlock {
			if block.TrackNumber != track.TrackNumber {
				continue
			}
			for _, frame := range block.Data {
				if len(frame) == 0 {
					continue
				}
				decoded, err := dec.Decode(frame, maxOpusFrame, false)
				if err != nil {
					return nil, fmt.Errorf("audio: decode opus frame: %w", err)
				}
				pcm = append(pcm, decoded...)
			}
		}
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("audio: webm contains no opus audio data")
	}

	mono := monoFloat32(pcm, channels)
	return Resample(mono, opusRate, targetRate), nil
}

// findOpusTrack returns the first track entry carrying Opus audio.
func findOpusTrack(entries []webm.TrackEntry) (*webm.TrackEntry, error) {
	for i := range entries {
		if strings.EqualFold(entries[i].CodecID, "A_OPUS") {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("audio: webm has no opus track")
}
