package audio

// ResampleLinear converts samples recorded at from Hz to to Hz by linear
// interpolation between neighbouring samples. The result always has at
// least one sample when the input is non-empty.
func ResampleLinear(samples []float32, from, to int) []float32 {
	n := len(samples)
	if n == 0 || from <= 0 || to <= 0 || from == to {
		return append([]float32(nil), samples...)
	}
	step := float64(from) / float64(to)
	out := make([]float32, max(1, int(float64(n)*float64(to)/float64(from))))
	last := samples[n-1]
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j+1 >= n {
			out[i] = last
			continue
		}
		t := float32(pos - float64(j))
		out[i] = samples[j]*(1-t) + samples[j+1]*t
	}
	return out
}
