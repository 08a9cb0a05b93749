// Package dataset exposes a listing of image samples as random-access,
// transformed items ready for batching.
package dataset

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/Brownie44l1/alaska2/internal/classes"
	"github.com/Brownie44l1/alaska2/internal/listing"
	"github.com/Brownie44l1/alaska2/internal/transform"
)

// ErrIndexOutOfRange is returned by Get for an index outside [0, Len()).
var ErrIndexOutOfRange = errors.New("dataset index out of range")

type Mode int

const (
	// Training items carry their target and its one-hot encoding.
	Training Mode = iota
	// Inference items carry only the image.
	Inference
)

func (m Mode) String() string {
	switch m {
	case Training:
		return "training"
	case Inference:
		return "inference"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ReadError reports an image that could not be opened or decoded.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read image %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Dataset is safe for concurrent use: Get only reads the immutable sample
// list and allocates its own output.
type Dataset struct {
	samples   []listing.Sample
	classes   *classes.Set
	transform transform.Func
	mode      Mode
}

// New builds a dataset over samples. fn may be nil. In Training mode every
// sample must carry a label in [0, set.Len()).
func New(samples []listing.Sample, set *classes.Set, fn transform.Func, mode Mode) (*Dataset, error) {
	if mode == Training {
		if set == nil {
			return nil, errors.New("training dataset needs a class set")
		}
		for i, s := range samples {
			if !set.Contains(s.Label) {
				return nil, fmt.Errorf("sample %d (%s): label %d out of range [0, %d)", i, s.Path, s.Label, set.Len())
			}
		}
	}
	owned := make([]listing.Sample, len(samples))
	copy(owned, samples)
	return &Dataset{
		samples:   owned,
		classes:   set,
		transform: fn,
		mode:      mode,
	}, nil
}

func (d *Dataset) Len() int {
	return len(d.samples)
}

func (d *Dataset) Mode() Mode {
	return d.mode
}

func (d *Dataset) Classes() *classes.Set {
	return d.classes
}

// Sample returns the listing row at index without reading the image.
func (d *Dataset) Sample(index int) (listing.Sample, error) {
	if index < 0 || index >= len(d.samples) {
		return listing.Sample{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(d.samples))
	}
	return d.samples[index], nil
}

// Get reads, transforms and returns the item at index. The image is read
// from storage on every call.
func (d *Dataset) Get(index int) (Item, error) {
	s, err := d.Sample(index)
	if err != nil {
		return nil, err
	}

	img, err := decodeFile(s.Path)
	if err != nil {
		return nil, &ReadError{Path: s.Path, Err: err}
	}
	if d.transform != nil {
		img = d.transform(img, index)
	}
	data, h, w := transform.ToTensor(img, nil)
	features := Tensor{Data: data, Shape: []int{transform.Channels, h, w}}

	if d.mode == Inference {
		return UnlabeledItem{Path: s.Path, Features: features}, nil
	}
	oneHot, err := d.classes.OneHot(s.Label)
	if err != nil {
		return nil, err
	}
	return LabeledItem{Path: s.Path, Features: features, Target: s.Label, OneHot: oneHot}, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}
