package audio

// Downsample16to8 converts 16 kHz mono PCM-16 samples to 8 kHz using a
// length-4 averaging kernel: out[i] = (x[2i-1] + 2*x[2i] + 2*x[2i+1] +
// x[2i+2]) / 6, saturating to the int16 range. Out-of-range source indices
// are clamped to the nearest edge sample. Returns exactly len(samples)/2
// output samples (the trailing odd input sample, if any, is dropped).
func Downsample16to8(samples []int16) []int16 {
	n := len(samples) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		lo := 2 * i
		sum := int32(at(samples, lo-1)) +
			2*int32(at(samples, lo)) +
			2*int32(at(samples, lo+1)) +
			int32(at(samples, lo+2))
		out[i] = saturate16(sum / 6)
	}
	return out
}

func at(samples []int16, idx int) int16 {
	if idx < 0 {
		return samples[0]
	}
	if idx >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]
}

func saturate16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// ResampleTo8kHz converts samples at srcRate to 8kHz mono. Uses the exact
// length-4 kernel for the common 16kHz case (Testable Property), and linear
// interpolation for other vendor output rates (e.g. Piper's 22050Hz,
// ElevenLabs' 24000Hz PCM profile). A no-op if srcRate is already 8000.
func ResampleTo8kHz(samples []int16, srcRate int) []int16 {
	switch {
	case srcRate == 8000:
		return samples
	case srcRate == 16000:
		return Downsample16to8(samples)
	default:
		return resampleLinear(samples, srcRate, 8000)
	}
}

func resampleLinear(samples []int16, srcRate, dstRate int) []int16 {
	if len(samples) == 0 || srcRate <= 0 {
		return nil
	}
	n := len(samples) * dstRate / srcRate
	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		srcPos := float64(i) * ratio
		lo := int(srcPos)
		frac := srcPos - float64(lo)
		a := at(samples, lo)
		b := at(samples, lo+1)
		out[i] = saturate16(int32(float64(a) + (float64(b)-float64(a))*frac))
	}
	return out
}
