package linear

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

type ClassReport struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarises binary predictions. Confusion is indexed
// [actual][predicted].
type Report struct {
	Confusion [2][2]int      `json:"confusion"`
	Classes   [2]ClassReport `json:"classes"`
	Accuracy  float64        `json:"accuracy"`
	Loss      float64        `json:"loss"`
	Support   int            `json:"support"`
}

// Evaluate thresholds probabilities at threshold (0.5 when non-positive) and
// scores them against labels. Ratios with a zero denominator are 0.
func Evaluate(labels, probabilities []float64, threshold float64) (Report, error) {
	if len(labels) != len(probabilities) {
		return Report{}, fmt.Errorf("%d labels but %d predictions", len(labels), len(probabilities))
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	var r Report
	r.Support = len(labels)
	for i, p := range probabilities {
		predicted := 0
		if p >= threshold {
			predicted = 1
		}
		r.Confusion[classOf(labels[i])][predicted]++
		r.Loss += logLoss(labels[i], p)
	}
	if r.Support == 0 {
		return r, nil
	}
	r.Loss /= float64(r.Support)
	r.Accuracy = float64(r.Confusion[0][0]+r.Confusion[1][1]) / float64(r.Support)

	for c := 0; c < 2; c++ {
		tp := r.Confusion[c][c]
		predicted := r.Confusion[0][c] + r.Confusion[1][c]
		actual := r.Confusion[c][0] + r.Confusion[c][1]
		cr := ClassReport{
			Label:     c,
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, actual),
			Support:   actual,
		}
		if cr.Precision+cr.Recall > 0 {
			cr.F1 = 2 * cr.Precision * cr.Recall / (cr.Precision + cr.Recall)
		}
		r.Classes[c] = cr
	}
	return r, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// String renders the report as a precision/recall/f1 table followed by the
// confusion matrix.
func (r Report) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "\tprecision\trecall\tf1-score\tsupport\t")
	for _, c := range r.Classes {
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%d\t\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintf(w, "accuracy\t\t\t%.2f\t%d\t\n", r.Accuracy, r.Support)
	w.Flush()
	fmt.Fprintf(&b, "\nconfusion matrix (rows actual, columns predicted)\n%v\n%v\n", r.Confusion[0], r.Confusion[1])
	return b.String()
}
