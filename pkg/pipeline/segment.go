package pipeline

import (
	"fmt"

	"github.com/MrWong99/voxauth/pkg/provider/asr"
)

// Slice is one per-digit cut of the input clip.
type Slice struct {
	// Digit is the ASCII digit this slice covers.
	Digit byte

	// Samples is the padded PCM for the digit.
	Samples []float32

	// Start and End are the unpadded span in seconds, as recognized.
	Start float64
	End   float64
}

// segment cuts the clip into one padded slice per digit span. The spans
// must already be validated against the prompt. Each slice extends from
// max(0, start − padding) to min(N, end + padding) samples; in no-overlap
// mode the right edge is additionally clamped to the next span's start.
// An empty slice fails with [ErrSegmentation].
func segment(samples []float32, sampleRate int, spans []asr.DigitSpan, padding float64, noOverlap bool) ([]Slice, error) {
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no digit spans", ErrSegmentation)
	}
	pad := int(padding * float64(sampleRate))

	slices := make([]Slice, 0, len(spans))
	for i, span := range spans {
		start := int(span.Start*float64(sampleRate)) - pad
		start = max(start, 0)

		end := int(span.End*float64(sampleRate)) + pad
		if noOverlap && i+1 < len(spans) {
			end = min(end, int(spans[i+1].Start*float64(sampleRate)))
		}
		end = min(end, len(samples))

		if end <= start {
			return nil, fmt.Errorf("%w: empty slice for digit %c at %.3f-%.3fs",
				ErrSegmentation, span.Digit, span.Start, span.End)
		}
		cut := make([]float32, end-start)
		copy(cut, samples[start:end])
		slices = append(slices, Slice{
			Digit:   span.Digit,
			Samples: cut,
			Start:   span.Start,
			End:     span.End,
		})
	}
	return slices, nil
}

// validateSpans checks that the recognized digit spans line up with the
// expected prompt: same count, same digits, same order.
func validateSpans(spans []asr.DigitSpan, prompt string) error {
	if len(spans) != len(prompt) {
		return fmt.Errorf("%w: %d digit spans for a %d-digit prompt",
			ErrSegmentation, len(spans), len(prompt))
	}
	for i, span := range spans {
		if span.Digit != prompt[i] {
			return fmt.Errorf("%w: span %d is %c, prompt says %c",
				ErrSegmentation, i, span.Digit, prompt[i])
		}
	}
	return nil
}
