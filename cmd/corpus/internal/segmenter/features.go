package segmenter

import "math"

// Features holds per-frame activity features, each normalized to [0, 1].
type Features struct {
	RMS []float64
	ZCR []float64
}

// frameCount returns the number of centred frames for n samples.
func frameCount(n, hop int) int {
	if n <= 0 || hop <= 0 {
		return 0
	}
	return 1 + n/hop
}

// frameWindow returns the sample range of frame i. Frames are centred on
// i*hop, so the window may extend past either end of the signal; those
// positions read as zero.
func frameWindow(i, frameLen, hop int) (int, int) {
	start := i*hop - frameLen/2
	return start, start + frameLen
}

func sampleAt(samples []float64, i int) float64 {
	if i < 0 || i >= len(samples) {
		return 0
	}
	return samples[i]
}

// rms computes root-mean-square energy per frame.
func rms(samples []float64, frameLen, hop int) []float64 {
	n := frameCount(len(samples), hop)
	out := make([]float64, n)
	for i := range out {
		from, to := frameWindow(i, frameLen, hop)
		sum := 0.0
		for j := from; j < to; j++ {
			s := sampleAt(samples, j)
			sum += s * s
		}
		out[i] = math.Sqrt(sum / float64(frameLen))
	}
	return out
}

// zcr computes the zero-crossing rate per frame: the fraction of adjacent
// sample pairs whose sign differs. Zero counts as positive.
func zcr(samples []float64, frameLen, hop int) []float64 {
	n := frameCount(len(samples), hop)
	out := make([]float64, n)
	for i := range out {
		from, to := frameWindow(i, frameLen, hop)
		crossings := 0
		prev := sampleAt(samples, from) < 0
		for j := from + 1; j < to; j++ {
			cur := sampleAt(samples, j) < 0
			if cur != prev {
				crossings++
			}
			prev = cur
		}
		out[i] = float64(crossings) / float64(frameLen)
	}
	return out
}

// normalizeMax divides by the maximum absolute value; all-zero input stays zero.
func normalizeMax(xs []float64) []float64 {
	peak := 0.0
	for _, x := range xs {
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	out := make([]float64, len(xs))
	if peak == 0 {
		return out
	}
	for i, x := range xs {
		out[i] = x / peak
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// Analyze computes normalized RMS and ZCR for samples.
func Analyze(samples []float64, frameLen, hop int) Features {
	return Features{
		RMS: normalizeMax(rms(samples, frameLen, hop)),
		ZCR: normalizeMax(zcr(samples, frameLen, hop)),
	}
}

// ActiveFrames returns the indices of frames where
// rms > std(rms)*q or zcr > mean(zcr)*q, in ascending order.
func ActiveFrames(f Features, q float64) []int {
	rmsThreshold := stddev(f.RMS) * q
	zcrThreshold := mean(f.ZCR) * q
	var active []int
	for i := range f.RMS {
		if f.RMS[i] > rmsThreshold || f.ZCR[i] > zcrThreshold {
			active = append(active, i)
		}
	}
	return active
}
