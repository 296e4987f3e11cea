package linear

import "math"

// Scaler standardises each feature to zero mean and unit variance. NaN
// inputs are skipped when fitting and map to 0 (the mean) when transforming.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func FitScaler(samples [][]float64) Scaler {
	if len(samples) == 0 {
		return Scaler{}
	}
	width := len(samples[0])
	s := Scaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	for j := 0; j < width; j++ {
		var sum float64
		var n int
		for _, sample := range samples {
			if v := sample[j]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			s.Scale[j] = 1
			continue
		}
		mean := sum / float64(n)
		var sq float64
		for _, sample := range samples {
			if v := sample[j]; !math.IsNaN(v) {
				sq += (v - mean) * (v - mean)
			}
		}
		std := math.Sqrt(sq / float64(n))
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s
}

func (s Scaler) Transform(sample []float64) []float64 {
	out := make([]float64, len(sample))
	for j, v := range sample {
		if math.IsNaN(v) || j >= len(s.Mean) {
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

func (s Scaler) TransformAll(samples [][]float64) [][]float64 {
	out := make([][]float64, len(samples))
	for i, sample := range samples {
		out[i] = s.Transform(sample)
	}
	return out
}
