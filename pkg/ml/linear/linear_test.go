package linear

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separable() ([][]float64, []float64) {
	samples := [][]float64{{-2, 1}, {-1.5, 0}, {-1, 1}, {-0.5, 0}, {0.5, 1}, {1, 0}, {1.5, 1}, {2, 0}}
	labels := []float64{0, 0, 0, 0, 1, 1, 1, 1}
	return samples, labels
}

func TestTrainLogisticSeparable(t *testing.T) {
	samples, labels := separable()
	weights, metrics := TrainLogistic(samples, labels, Options{Epochs: 2000, LearningRate: 0.5})
	require.Len(t, weights.Coefficients, 2)
	assert.Equal(t, 1.0, metrics.Accuracy)
	assert.Greater(t, weights.Coefficients[0], 0.0)
	assert.Greater(t, Predict(weights, []float64{3, 0}), 0.9)
	assert.Less(t, Predict(weights, []float64{-3, 0}), 0.1)
}

func TestTrainLogisticEmpty(t *testing.T) {
	weights, metrics := TrainLogistic(nil, nil, Options{})
	assert.Empty(t, weights.Coefficients)
	assert.Zero(t, metrics.Accuracy)
}

func TestBalancedWeightsRaiseMinorityScores(t *testing.T) {
	samples := [][]float64{{0}, {0.1}, {0.2}, {0.3}, {0.4}, {0.5}, {0.6}, {0.7}, {0.8}, {1}}
	labels := []float64{0, 0, 0, 0, 0, 0, 0, 0, 1, 1}
	plain, _ := TrainLogistic(samples, labels, Options{Epochs: 500, LearningRate: 0.5})
	balanced, _ := TrainLogistic(samples, labels, Options{Epochs: 500, LearningRate: 0.5, Balanced: true})
	assert.Greater(t, Predict(balanced, []float64{0.9}), Predict(plain, []float64{0.9}))
}

func TestClassWeights(t *testing.T) {
	labels := []float64{0, 0, 0, 1}
	assert.Equal(t, [2]float64{1, 1}, ClassWeights(labels, false))
	w := ClassWeights(labels, true)
	assert.InDelta(t, 4.0/6.0, w[0], 1e-12)
	assert.InDelta(t, 2.0, w[1], 1e-12)
}

func TestScaler(t *testing.T) {
	samples := [][]float64{{1, math.NaN(), 7}, {3, 2, 7}, {5, 4, 7}}
	s := FitScaler(samples)
	assert.InDeltaSlice(t, []float64{3, 3, 7}, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(8.0/3.0), s.Scale[0], 1e-12)
	assert.InDelta(t, 1.0, s.Scale[1], 1e-12)
	assert.Equal(t, 1.0, s.Scale[2])

	out := s.Transform([]float64{3, math.NaN(), 7})
	assert.Equal(t, []float64{0, 0, 0}, out)
	out = s.Transform([]float64{5, 4, 8})
	assert.InDelta(t, 2/math.Sqrt(8.0/3.0), out[0], 1e-12)
	assert.InDelta(t, 1.0, out[1], 1e-12)
	assert.InDelta(t, 1.0, out[2], 1e-12)
}

func TestStratifiedSplit(t *testing.T) {
	labels := make([]float64, 20)
	for i := 10; i < 20; i++ {
		labels[i] = 1
	}
	train, test, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 4)
	assert.Len(t, train, 16)

	var positives int
	seen := map[int]bool{}
	for _, i := range test {
		seen[i] = true
		if labels[i] == 1 {
			positives++
		}
	}
	assert.Equal(t, 2, positives)
	for _, i := range train {
		assert.False(t, seen[i], "row %d in both sets", i)
		seen[i] = true
	}
	assert.Len(t, seen, 20)

	train2, test2, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestStratifiedSplitErrors(t *testing.T) {
	_, _, err := StratifiedSplit([]float64{0, 0, 0, 1}, 0.5, 1)
	assert.ErrorIs(t, err, ErrSingleClass)
	_, _, err = StratifiedSplit([]float64{0, 0, 1, 1}, 1, 1)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	report, err := Evaluate([]float64{1, 0, 1, 0, 0}, []float64{0.9, 0.2, 0.4, 0.6, 0.1}, 0)
	require.NoError(t, err)
	assert.Equal(t, [2][2]int{{2, 1}, {1, 1}}, report.Confusion)
	assert.InDelta(t, 0.6, report.Accuracy, 1e-12)
	assert.Equal(t, 5, report.Support)

	neg := report.Classes[0]
	assert.InDelta(t, 2.0/3.0, neg.Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, neg.Recall, 1e-12)
	assert.Equal(t, 3, neg.Support)

	pos := report.Classes[1]
	assert.InDelta(t, 0.5, pos.Precision, 1e-12)
	assert.InDelta(t, 0.5, pos.Recall, 1e-12)
	assert.InDelta(t, 0.5, pos.F1, 1e-12)

	assert.Contains(t, report.String(), "precision")
	assert.Contains(t, report.String(), "accuracy")
}

func TestEvaluateZeroDivision(t *testing.T) {
	report, err := Evaluate([]float64{0, 0}, []float64{0.1, 0.2}, 0.5)
	require.NoError(t, err)
	assert.Zero(t, report.Classes[1].Precision)
	assert.Zero(t, report.Classes[1].F1)

	_, err = Evaluate([]float64{0}, nil, 0.5)
	assert.Error(t, err)
}

func TestTopCoefficients(t *testing.T) {
	top := TopCoefficients([]string{"a", "b", "c"}, Weights{Coefficients: []float64{0.1, -2, 1}}, 2)
	assert.Equal(t, []Coefficient{{Feature: "b", Weight: -2}, {Feature: "c", Weight: 1}}, top)
}
