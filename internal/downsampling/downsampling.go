// Package downsampling reduces long series to a drawable number of points
// while keeping their visual shape.
package downsampling

import (
	"math"
	"time"
)

// Mode represents the downsampling mode
type Mode string

const (
	// ModeNone means no downsampling
	ModeNone Mode = "none"
	// ModeAuto picks LTTB or MinMax from the shape of the data
	ModeAuto Mode = "auto"
	// ModeLTTB uses Largest-Triangle-Three-Buckets algorithm
	ModeLTTB Mode = "lttb"
	// ModeMinMax keeps min and max values per bucket (preserves peaks/spikes)
	ModeMinMax Mode = "minmax"
)

// spikinessThreshold switches auto mode from LTTB to MinMax.
const spikinessThreshold = 0.2

// IsValid checks if a mode string is valid
func IsValid(mode string) bool {
	switch Mode(mode) {
	case ModeNone, ModeAuto, ModeLTTB, ModeMinMax:
		return true
	}
	return false
}

// Apply downsamples an aligned series to at most threshold points.
// Series already within the threshold are returned unchanged.
func Apply(times []time.Time, values []float64, mode Mode, threshold int) ([]time.Time, []float64) {
	idx := Indices(values, mode, threshold)
	if idx == nil {
		return times, values
	}
	outTimes := make([]time.Time, len(idx))
	outValues := make([]float64, len(idx))
	for i, j := range idx {
		outTimes[i] = times[j]
		outValues[i] = values[j]
	}
	return outTimes, outValues
}

// Indices returns the ascending positions to keep, or nil when every point
// is kept.
func Indices(values []float64, mode Mode, threshold int) []int {
	if mode == ModeNone || len(values) == 0 {
		return nil
	}
	if threshold < 2 {
		threshold = 2
	}
	if len(values) <= threshold {
		return nil
	}

	if mode == ModeAuto {
		mode = ModeLTTB
		if Spikiness(values) > spikinessThreshold {
			mode = ModeMinMax
		}
	}

	switch mode {
	case ModeMinMax:
		return minmax(values, threshold)
	default:
		return lttb(values, threshold)
	}
}

// Spikiness combines the share of points beyond two standard deviations
// with the share of steps larger than one standard deviation, weighting
// steps higher. The result is in [0, 1].
func Spikiness(values []float64) float64 {
	if len(values) < 10 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(values)))
	if stdDev == 0 {
		return 0
	}

	spikes, steps := 0, 0
	for i, v := range values {
		if math.Abs(v-mean) > 2*stdDev {
			spikes++
		}
		if i > 0 && math.Abs(v-values[i-1]) > stdDev {
			steps++
		}
	}

	absolute := float64(spikes) / float64(len(values))
	derivative := float64(steps) / float64(len(values)-1)
	return math.Min((absolute+1.5*derivative)/2.5, 1)
}

func lttb(data []float64, threshold int) []int {
	if threshold <= 2 {
		return []int{0, len(data) - 1}
	}

	sampled := make([]int, 0, threshold)
	sampled = append(sampled, 0)

	// Bucket size (excluding first and last points)
	bucketSize := float64(len(data)-2) / float64(threshold-2)

	// Index of the point in the previous bucket
	a := 0

	for i := 0; i < threshold-2; i++ {
		// Average of the next bucket
		avgStart := int(math.Floor(float64(i+1)*bucketSize)) + 1
		avgEnd := int(math.Floor(float64(i+2)*bucketSize)) + 1
		if avgEnd >= len(data) {
			avgEnd = len(data)
		}

		avgX, avgY := 0.0, 0.0
		for j := avgStart; j < avgEnd; j++ {
			avgX += float64(j)
			avgY += data[j]
		}
		if n := float64(avgEnd - avgStart); n > 0 {
			avgX /= n
			avgY /= n
		}

		rangeOffs := int(math.Floor(float64(i)*bucketSize)) + 1
		rangeTo := int(math.Floor(float64(i+1)*bucketSize)) + 1

		pointAX := float64(a)
		pointAY := data[a]

		maxArea := -1.0
		maxAreaPoint := rangeOffs
		for j := rangeOffs; j < rangeTo; j++ {
			// Triangle area over three buckets
			area := math.Abs((pointAX-avgX)*(data[j]-pointAY)-(pointAX-float64(j))*(avgY-pointAY)) * 0.5
			if area > maxArea {
				maxArea = area
				maxAreaPoint = j
			}
		}

		sampled = append(sampled, maxAreaPoint)
		a = maxAreaPoint
	}

	return append(sampled, len(data)-1)
}

func minmax(data []float64, threshold int) []int {
	// Two points per bucket
	numBuckets := threshold / 2
	if numBuckets < 1 {
		numBuckets = 1
	}

	bucketSize := float64(len(data)) / float64(numBuckets)
	sampled := make([]int, 0, numBuckets*2)

	for i := 0; i < numBuckets; i++ {
		start := int(float64(i) * bucketSize)
		end := int(float64(i+1) * bucketSize)
		if end > len(data) {
			end = len(data)
		}
		if start >= end {
			continue
		}

		minIdx, maxIdx := start, start
		for j := start + 1; j < end; j++ {
			if data[j] < data[minIdx] {
				minIdx = j
			}
			if data[j] > data[maxIdx] {
				maxIdx = j
			}
		}

		// Keep time order within the bucket
		first, second := minIdx, maxIdx
		if first > second {
			first, second = second, first
		}
		sampled = append(sampled, first)
		if second != first {
			sampled = append(sampled, second)
		}
	}

	return sampled
}
