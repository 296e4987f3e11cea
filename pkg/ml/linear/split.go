package linear

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

var ErrSingleClass = errors.New("stratified split needs both classes")

// StratifiedSplit partitions row indices into train and test sets holding
// each class in the same proportion. The same seed yields the same split.
func StratifiedSplit(labels []float64, testFraction float64, seed int64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v outside (0, 1)", testFraction)
	}
	var byClass [2][]int
	for i, label := range labels {
		c := classOf(label)
		byClass[c] = append(byClass[c], i)
	}
	if len(byClass[0]) < 2 || len(byClass[1]) < 2 {
		return nil, nil, fmt.Errorf("%w: %d negatives, %d positives", ErrSingleClass, len(byClass[0]), len(byClass[1]))
	}

	rng := rand.New(rand.NewSource(seed))
	for _, idx := range byClass {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(testFraction * float64(len(idx))))
		if nTest < 1 {
			nTest = 1
		}
		if nTest > len(idx)-1 {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// Rows selects samples and labels by index.
func Rows(samples [][]float64, labels []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, row := range idx {
		xs[i] = samples[row]
		ys[i] = labels[row]
	}
	return xs, ys
}
