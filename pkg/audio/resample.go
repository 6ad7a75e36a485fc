package audio

// Resampler converts a mono float stream from a source rate to a destination
// rate using linear interpolation between the two nearest input samples. A
// fractional read cursor is carried across Process calls so that feeding the
// same stream in blocks of any size produces the same output as a single
// large block — no sample is dropped or duplicated at block boundaries.
//
// Create one per stream; not designed for shared use across goroutines.
type Resampler struct {
	ratio float64 // source samples advanced per output sample
	pos   float64 // fractional position within the current input block
}

// NewResampler creates a Resampler from srcRate to dstRate. Both rates must
// be positive; equal rates yield a pass-through with copy semantics.
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{ratio: float64(srcRate) / float64(dstRate)}
}

// Process resamples one input block and returns the output samples produced.
// The returned slice is freshly allocated and owned by the caller.
func (r *Resampler) Process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}

	// Worst-case output size for this block given the carried cursor.
	capHint := int(float64(len(in))/r.ratio) + 2
	out := make([]float32, 0, capHint)

	for r.pos < float64(len(in)) {
		idx := int(r.pos)
		frac := float32(r.pos - float64(idx))

		a := in[idx]
		b := a
		if idx+1 < len(in) {
			b = in[idx+1]
		}

		out = append(out, a+frac*(b-a))
		r.pos += r.ratio
	}

	// Carry the fractional remainder into the next block.
	r.pos -= float64(len(in))
	return out
}

// Reset clears the carried cursor so the next Process call starts a fresh
// stream.
func (r *Resampler) Reset() {
	r.pos = 0
}
