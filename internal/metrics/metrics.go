// Package metrics scores predictions against known labels.
package metrics

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/Brownie44l1/alaska2/internal/inference"
)

var errSingleClass = errors.New("AUC needs both positive and negative samples")

// Accuracy is the fraction of predicted class ids equal to their target.
func Accuracy(predicted, targets []int) (float64, error) {
	if len(predicted) != len(targets) {
		return 0, fmt.Errorf("%w: %d predictions, %d targets", inference.ErrLengthMismatch, len(predicted), len(targets))
	}
	if len(targets) == 0 {
		return 0, errors.New("no samples")
	}
	correct := 0
	for i := range targets {
		if predicted[i] == targets[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(targets)), nil
}

// ROC returns the false and true positive rates of scores against
// positives, ordered by increasing false positive rate.
func ROC(scores []float64, positives []bool) (fpr, tpr []float64, err error) {
	if len(scores) != len(positives) {
		return nil, nil, fmt.Errorf("%w: %d scores, %d labels", inference.ErrLengthMismatch, len(scores), len(positives))
	}
	var pos, neg int
	for _, p := range positives {
		if p {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return nil, nil, errSingleClass
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] < scores[order[j]] })
	y := make([]float64, len(scores))
	classes := make([]bool, len(scores))
	for i, idx := range order {
		y[i] = scores[idx]
		classes[i] = positives[idx]
	}
	tpr, fpr, _ = stat.ROC(nil, y, classes, nil)
	return fpr, tpr, nil
}

// AUC is the area under the ROC curve.
func AUC(scores []float64, positives []bool) (float64, error) {
	fpr, tpr, err := ROC(scores, positives)
	if err != nil {
		return 0, err
	}
	return integrate.Trapezoidal(fpr, tpr), nil
}

// Band weights the part of the ROC area that lies between two true positive
// rates.
type Band struct {
	Low, High float64
	Weight    float64
}

// ALASKA2Bands weights the low-TPR region twice as much as the rest.
var ALASKA2Bands = []Band{
	{Low: 0, High: 0.4, Weight: 2},
	{Low: 0.4, High: 1, Weight: 1},
}

// WeightedAUC splits the ROC area into horizontal TPR bands, weights each and
// normalizes so a perfect classifier scores 1.
func WeightedAUC(scores []float64, positives []bool, bands []Band) (float64, error) {
	fpr, tpr, err := ROC(scores, positives)
	if err != nil {
		return 0, err
	}
	var total, norm float64
	for _, band := range bands {
		total += band.Weight * bandArea(fpr, tpr, band.Low, band.High)
		norm += band.Weight * (band.High - band.Low)
	}
	if norm == 0 {
		return 0, errors.New("bands have no area")
	}
	return total / norm, nil
}

// bandArea integrates clip(tpr, low, high) - low over fpr on the piecewise
// linear curve, splitting segments where they cross a band edge.
func bandArea(fpr, tpr []float64, low, high float64) float64 {
	clip := func(v float64) float64 {
		if v < low {
			return 0
		}
		if v > high {
			return high - low
		}
		return v - low
	}
	var area float64
	for i := 0; i+1 < len(fpr); i++ {
		x0, x1, y0, y1 := fpr[i], fpr[i+1], tpr[i], tpr[i+1]
		if x1 == x0 {
			continue
		}
		ts := []float64{0, 1}
		if y1 != y0 {
			for _, edge := range []float64{low, high} {
				if t := (edge - y0) / (y1 - y0); t > 0 && t < 1 {
					ts = append(ts, t)
				}
			}
		}
		sort.Float64s(ts)
		for j := 0; j+1 < len(ts); j++ {
			xa, xb := x0+ts[j]*(x1-x0), x0+ts[j+1]*(x1-x0)
			ya, yb := y0+ts[j]*(y1-y0), y0+ts[j+1]*(y1-y0)
			area += (xb - xa) * (clip(ya) + clip(yb)) / 2
		}
	}
	return area
}

type ClassStats struct {
	Total   int
	Correct int
}

type Report struct {
	Samples     int
	Accuracy    float64
	AUC         float64
	WeightedAUC float64
	PerClass    map[string]ClassStats
}

func (r Report) String() string {
	return fmt.Sprintf("samples=%d accuracy=%.4f auc=%.4f weighted_auc=%.4f",
		r.Samples, r.Accuracy, r.AUC, r.WeightedAUC)
}

// Evaluate scores a result table against the true class of each row. The
// binary task treats every class other than index 0 as positive and ranks by
// the table's label column.
func Evaluate(table *inference.Table, targets []int) (Report, error) {
	if table.Len() != len(targets) {
		return Report{}, fmt.Errorf("%w: %d rows, %d targets", inference.ErrLengthMismatch, table.Len(), len(targets))
	}
	predicted := make([]int, table.Len())
	scores := make([]float64, table.Len())
	positives := make([]bool, table.Len())
	report := Report{Samples: table.Len(), PerClass: make(map[string]ClassStats)}
	for i, row := range table.Rows {
		predicted[i] = row.Class()
		scores[i] = row.Label
		positives[i] = targets[i] != 0

		name := fmt.Sprint(targets[i])
		if targets[i] >= 0 && targets[i] < len(table.Classes) {
			name = table.Classes[targets[i]]
		}
		stats := report.PerClass[name]
		stats.Total++
		if predicted[i] == targets[i] {
			stats.Correct++
		}
		report.PerClass[name] = stats
	}

	var err error
	if report.Accuracy, err = Accuracy(predicted, targets); err != nil {
		return Report{}, err
	}
	if report.AUC, err = AUC(scores, positives); err != nil {
		return Report{}, err
	}
	if report.WeightedAUC, err = WeightedAUC(scores, positives, ALASKA2Bands); err != nil {
		return Report{}, err
	}
	return report, nil
}
