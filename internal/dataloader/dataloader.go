// Package dataloader groups dataset items into batches, reading the items of
// each batch in parallel.
package dataloader

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/alaska2/internal/dataset"
)

// Dataset is the random-access source a Loader reads from.
type Dataset interface {
	Len() int
	Get(index int) (dataset.Item, error)
}

type Options struct {
	BatchSize int
	Workers   int // parallel item reads per batch
	Shuffle   bool
	Seed      int64
	DropLast  bool // drop a trailing batch smaller than BatchSize
}

// Batch holds Size items packed back to back. IDs[i] and Targets[i] describe
// the i-th item of Data. Targets is nil for unlabeled items.
type Batch struct {
	IDs     []string
	Data    []float32
	Targets []int
	Shape   []int // per item, C, H, W
	Size    int
}

// Item returns the features of the i-th item of the batch.
func (b Batch) Item(i int) []float32 {
	n := len(b.Data) / b.Size
	return b.Data[i*n : (i+1)*n]
}

type Loader struct {
	dataset  Dataset
	opts     Options
	indices  []int
	position int
	rng      *rand.Rand
	mu       sync.Mutex
}

func New(ds Dataset, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	l := &Loader{
		dataset: ds,
		opts:    opts,
		indices: make([]int, ds.Len()),
		rng:     rand.New(rand.NewSource(opts.Seed)),
	}
	for i := range l.indices {
		l.indices[i] = i
	}
	l.shuffle()
	return l
}

func (l *Loader) shuffle() {
	if !l.opts.Shuffle {
		return
	}
	l.rng.Shuffle(len(l.indices), func(i, j int) {
		l.indices[i], l.indices[j] = l.indices[j], l.indices[i]
	})
}

// Len returns the number of batches in one pass.
func (l *Loader) Len() int {
	n := len(l.indices) / l.opts.BatchSize
	if !l.opts.DropLast && len(l.indices)%l.opts.BatchSize != 0 {
		n++
	}
	return n
}

// Progress reports how many items have been consumed out of the total.
func (l *Loader) Progress() (current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position, len(l.indices)
}

// Next returns the next batch, or io.EOF once the pass is complete. The first
// item that fails to load aborts the batch and its error is returned.
func (l *Loader) Next(ctx context.Context) (Batch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := len(l.indices) - l.position
	if remaining <= 0 || (l.opts.DropLast && remaining < l.opts.BatchSize) {
		return Batch{}, io.EOF
	}
	size := l.opts.BatchSize
	if remaining < size {
		size = remaining
	}
	indices := l.indices[l.position : l.position+size]
	l.position += size

	items := make([]dataset.Item, size)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for slot, idx := range indices {
		slot, idx := slot, idx
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item, err := l.dataset.Get(idx)
			if err != nil {
				return fmt.Errorf("load item %d: %w", idx, err)
			}
			items[slot] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}
	return pack(items)
}

func pack(items []dataset.Item) (Batch, error) {
	first := items[0].Image()
	per := first.Len()
	b := Batch{
		IDs:   make([]string, len(items)),
		Data:  make([]float32, len(items)*per),
		Shape: append([]int(nil), first.Shape...),
		Size:  len(items),
	}
	for i, item := range items {
		img := item.Image()
		if img.Len() != per {
			return Batch{}, fmt.Errorf("item %s has %d values, batch expects %d", item.ID(), img.Len(), per)
		}
		b.IDs[i] = item.ID()
		copy(b.Data[i*per:], img.Data)
		if labeled, ok := item.(dataset.LabeledItem); ok {
			if b.Targets == nil {
				b.Targets = make([]int, len(items))
			}
			b.Targets[i] = labeled.Target
		}
	}
	return b, nil
}
