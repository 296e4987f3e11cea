package linear

import (
	"math"
	"sort"
)

type Options struct {
	Epochs       int
	LearningRate float64
	// Balanced weights each class by n/(2*n_class) so the minority class
	// contributes as much gradient as the majority.
	Balanced bool
	L2       float64
}

type Weights struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
}

type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

func TrainLogistic(samples [][]float64, labels []float64, opts Options) (Weights, Metrics) {
	if opts.Epochs <= 0 {
		opts.Epochs = 200
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.01
	}

	n := len(samples)
	if n == 0 {
		return Weights{}, Metrics{}
	}
	featureCount := len(samples[0])
	weights := make([]float64, featureCount)
	var bias float64

	sampleWeight := ClassWeights(labels, opts.Balanced)
	var totalWeight float64
	for _, label := range labels {
		totalWeight += sampleWeight[classOf(label)]
	}

	grad := make([]float64, featureCount)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var biasGrad float64
		for i, sample := range samples {
			w := sampleWeight[classOf(labels[i])]
			err := w * (sigmoid(dot(weights, sample)+bias) - labels[i])
			for j := 0; j < featureCount; j++ {
				grad[j] += err * sample[j]
			}
			biasGrad += err
		}
		for j := 0; j < featureCount; j++ {
			weights[j] -= opts.LearningRate * (grad[j]/totalWeight + opts.L2*weights[j])
		}
		bias -= opts.LearningRate * biasGrad / totalWeight
	}

	loss, accuracy := evaluate(weights, bias, samples, labels)
	return Weights{Bias: bias, Coefficients: weights}, Metrics{Loss: loss, Accuracy: accuracy}
}

// ClassWeights returns the per-class sample weight for labels 0 and 1.
// Unbalanced training weights both classes by 1.
func ClassWeights(labels []float64, balanced bool) [2]float64 {
	weights := [2]float64{1, 1}
	if !balanced || len(labels) == 0 {
		return weights
	}
	var counts [2]int
	for _, label := range labels {
		counts[classOf(label)]++
	}
	for c, count := range counts {
		if count > 0 {
			weights[c] = float64(len(labels)) / (2 * float64(count))
		}
	}
	return weights
}

func Predict(weights Weights, sample []float64) float64 {
	return sigmoid(dot(weights.Coefficients, sample) + weights.Bias)
}

func PredictAll(weights Weights, samples [][]float64) []float64 {
	out := make([]float64, len(samples))
	for i, sample := range samples {
		out[i] = Predict(weights, sample)
	}
	return out
}

type Coefficient struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// TopCoefficients ranks features by absolute coefficient, largest first.
func TopCoefficients(names []string, weights Weights, k int) []Coefficient {
	out := make([]Coefficient, 0, len(names))
	for i, name := range names {
		if i >= len(weights.Coefficients) {
			break
		}
		out = append(out, Coefficient{Feature: name, Weight: weights.Coefficients[i]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Weight) > math.Abs(out[j].Weight)
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func classOf(label float64) int {
	if label >= 0.5 {
		return 1
	}
	return 0
}

func dot(weights []float64, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(weights); i++ {
		sum += weights[i] * sample[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func evaluate(weights []float64, bias float64, samples [][]float64, labels []float64) (float64, float64) {
	var loss float64
	var correct int
	for i, sample := range samples {
		prediction := sigmoid(dot(weights, sample) + bias)
		loss += logLoss(labels[i], prediction)
		if classOf(prediction) == classOf(labels[i]) {
			correct++
		}
	}
	loss /= float64(len(samples))
	accuracy := float64(correct) / float64(len(samples))
	return loss, accuracy
}

func logLoss(label, prediction float64) float64 {
	return -label*math.Log(prediction+1e-9) - (1-label)*math.Log(1-prediction+1e-9)
}
