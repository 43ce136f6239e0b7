package audio

// monoFloat32 down-mixes interleaved 16-bit samples to mono float32 in the
// range [-1.0, 1.0] by averaging all channels per frame. If channels is 1
// this is a plain scale.
func monoFloat32(pcm []int16, channels int) []float32 {
	if channels <= 1 {
		mono := make([]float32, len(pcm))
		for i, s := range pcm {
			mono[i] = float32(s) / 32768.0
		}
		return mono
	}
	frames := len(pcm) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(pcm[i*channels+ch]) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Resample converts mono float32 samples from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate, the input is returned
// unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
