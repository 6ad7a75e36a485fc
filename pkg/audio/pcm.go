package audio

// EncodeInt16 converts a float sample in [-1, 1] to a signed 16-bit integer.
// Negative values scale by 32768 and non-negative by 32767 so that +1.0 maps
// to 32767 instead of wrapping. Out-of-range input is clamped first.
func EncodeInt16(sample float32) int16 {
	if sample < -1 {
		sample = -1
	} else if sample > 1 {
		sample = 1
	}
	if sample < 0 {
		return int16(sample * 32768)
	}
	return int16(sample * 32767)
}

// DecodeInt16 converts a signed 16-bit sample back to float. The divisor is
// 32768 for both polarities; the encoder already clamped, so no clipping
// correction is applied here.
func DecodeInt16(sample int16) float32 {
	return float32(sample) / 32768
}

// EncodeFrame converts float samples to little-endian int16 PCM bytes.
func EncodeFrame(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := EncodeInt16(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// DecodeChunk converts little-endian int16 PCM bytes to float samples.
// A trailing odd byte is ignored.
func DecodeChunk(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = DecodeInt16(v)
	}
	return out
}
