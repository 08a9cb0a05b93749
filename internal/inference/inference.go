// Package inference turns raw classifier scores into per-image probabilities
// and the submission label derived from them.
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/Brownie44l1/alaska2/internal/dataloader"
)

// ErrLengthMismatch is returned when the number of prediction rows differs
// from the number of identifiers they are meant to be paired with.
var ErrLengthMismatch = errors.New("prediction count does not match identifier count")

// LabelMode selects what a result table carries. Both modes emit the binary
// label 1 - p(reference); Multiclass also keeps every class probability.
type LabelMode string

const (
	Binary     LabelMode = "binary"
	Multiclass LabelMode = "multiclass"
)

func ParseLabelMode(s string) (LabelMode, error) {
	switch LabelMode(s) {
	case Binary, Multiclass:
		return LabelMode(s), nil
	default:
		return "", fmt.Errorf("unknown label mode %q", s)
	}
}

// Scorer is the model boundary: n packed images in, n raw score vectors out.
type Scorer interface {
	Score(ctx context.Context, data []float32, n int) ([][]float32, error)
}

// BatchSource yields batches until io.EOF.
type BatchSource interface {
	Next(ctx context.Context) (dataloader.Batch, error)
}

// progressReporter is implemented by sources that know how far along they are.
type progressReporter interface {
	Progress() (current, total int)
}

type Prediction struct {
	ID            string
	Probabilities []float64
	Label         float64
}

// Class returns the index of the most probable class.
func (p Prediction) Class() int {
	return floats.MaxIdx(p.Probabilities)
}

type Table struct {
	Classes []string
	Mode    LabelMode
	Rows    []Prediction
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Softmax normalizes scores into a probability distribution.
func Softmax(scores []float32) []float64 {
	p := make([]float64, len(scores))
	for i, s := range scores {
		p[i] = float64(s)
	}
	lse := floats.LogSumExp(p)
	for i := range p {
		p[i] = math.Exp(p[i] - lse)
	}
	return p
}

// NotReference is the probability that an image is not of the reference
// class at index 0.
func NotReference(p []float64) float64 {
	return 1 - p[0]
}

type Aggregator struct {
	classes []string
	mode    LabelMode
	log     logrus.FieldLogger
}

func NewAggregator(classes []string, mode LabelMode, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{classes: classes, mode: mode, log: log}
}

// Run pulls every batch from src, scores it and collects the predictions in
// input order. Each batch's identifiers stay attached to its scores.
func (a *Aggregator) Run(ctx context.Context, src BatchSource, scorer Scorer) (*Table, error) {
	table := &Table{Classes: a.classes, Mode: a.mode}
	for batches := 0; ; batches++ {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", batches, err)
		}
		scores, err := scorer.Score(ctx, batch.Data, batch.Size)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", batches, err)
		}
		rows, err := predictions(batch.IDs, scores, len(a.classes))
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", batches, err)
		}
		table.Rows = append(table.Rows, rows...)

		fields := logrus.Fields{
			"batch": batches,
			"rows":  len(table.Rows),
		}
		if p, ok := src.(progressReporter); ok {
			current, total := p.Progress()
			fields["progress"] = fmt.Sprintf("%d/%d", current, total)
		}
		a.log.WithFields(fields).Debug("batch scored")
	}
	return table, nil
}

// Assemble pairs an identifier list with separately produced score rows by
// position. The two must have the same length.
func Assemble(ids []string, scores [][]float32, classes []string, mode LabelMode) (*Table, error) {
	rows, err := predictions(ids, scores, len(classes))
	if err != nil {
		return nil, err
	}
	return &Table{Classes: classes, Mode: mode, Rows: rows}, nil
}

func predictions(ids []string, scores [][]float32, numClasses int) ([]Prediction, error) {
	if len(ids) != len(scores) {
		return nil, fmt.Errorf("%w: %d identifiers, %d predictions", ErrLengthMismatch, len(ids), len(scores))
	}
	rows := make([]Prediction, len(ids))
	for i, id := range ids {
		if len(scores[i]) != numClasses {
			return nil, fmt.Errorf("%s: got %d scores, expected %d classes", id, len(scores[i]), numClasses)
		}
		p := Softmax(scores[i])
		rows[i] = Prediction{ID: id, Probabilities: p, Label: NotReference(p)}
	}
	return rows, nil
}
