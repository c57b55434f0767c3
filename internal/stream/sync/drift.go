// Package sync implements the Sync Engine of §4.C: a master clock and
// per-listener playback adjustments keeping listeners of the same
// stream acoustically aligned.
package sync

import "math"

// DriftCompensator keeps a per-client FIFO of drift samples and reports
// a rolling mean, variance and stability score, per §4.C.
type DriftCompensator struct {
	window  int
	samples []float64
}

func NewDriftCompensator(window int) *DriftCompensator {
	if window <= 0 {
		window = 20
	}
	return &DriftCompensator{window: window}
}

func (d *DriftCompensator) Record(driftMs float64) {
	d.samples = append(d.samples, driftMs)
	if len(d.samples) > d.window {
		d.samples = d.samples[len(d.samples)-d.window:]
	}
}

// MeanVariance returns the rolling mean and variance of recorded drift
// samples.
func (d *DriftCompensator) MeanVariance() (mean, variance float64) {
	if len(d.samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range d.samples {
		sum += s
	}
	mean = sum / float64(len(d.samples))

	var sqSum float64
	for _, s := range d.samples {
		diff := s - mean
		sqSum += diff * diff
	}
	variance = sqSum / float64(len(d.samples))
	return
}

// StabilityScore is 1 - min(stddev/100, 1): near 1 for a steady
// listener, near 0 for one whose drift is swinging wildly.
func (d *DriftCompensator) StabilityScore() float64 {
	_, variance := d.MeanVariance()
	stddev := math.Sqrt(variance)
	score := 1 - math.Min(stddev/100, 1)
	if score < 0 {
		score = 0
	}
	return score
}
