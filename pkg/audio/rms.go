package audio

import "math"

// RMS returns the root-mean-square energy of a block of float samples.
// Returns 0 for an empty block.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}
