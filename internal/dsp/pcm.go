package dsp

// PCM16 <-> normalized float conversion. All gain arithmetic in the chain
// operates on float64 samples in [-1, 1] and converts back to the integer
// range only once, at the end of the pipeline.

// bytesToFloats decodes little-endian PCM16 into normalized float64 samples.
func bytesToFloats(payload []byte) []float64 {
	n := len(payload) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(payload[i*2]) | int16(payload[i*2+1])<<8
		samples[i] = float64(s) / 32768.0
	}
	return samples
}

// floatsToBytes encodes normalized float64 samples as little-endian PCM16,
// clipping to the representable range.
func floatsToBytes(samples []float64) []byte {
	payload := make([]byte, len(samples)*2)
	for i, f := range samples {
		s := int16(clip(f) * 32767.0)
		payload[i*2] = byte(s)
		payload[i*2+1] = byte(uint16(s) >> 8)
	}
	return payload
}

// clip bounds a normalized sample to [-1, 1].
func clip(f float64) float64 {
	if f > 1.0 {
		return 1.0
	}
	if f < -1.0 {
		return -1.0
	}
	return f
}
