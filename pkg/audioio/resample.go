package audioio

// Resample converts PCM16 between sample rates by linear interpolation.
// That is adequate for speech; the capture path uses it to bring
// arbitrary device rates down to the recognizer's 16 kHz.
func Resample(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 {
		return samples
	}

	n := len(samples) * to / from
	if n == 0 {
		return nil
	}

	out := make([]int16, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		a, b := float64(samples[j]), float64(samples[j+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
