// Package listing reads and writes the tabular (path, label) listings a
// dataset is built from, and builds them from an ALASKA2 directory tree.
package listing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Brownie44l1/alaska2/internal/classes"
)

// NoLabel marks a sample whose class is unknown (test images).
const NoLabel = -1

type Sample struct {
	Path  string
	Label int
}

func (s Sample) Labeled() bool {
	return s.Label != NoLabel
}

// ReadCSV reads a listing with a header row. The "path" column is required;
// "label" is optional and may hold either a class name or a class index.
func ReadCSV(r io.Reader, set *classes.Set) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("listing is empty")
		}
		return nil, fmt.Errorf("read listing header: %w", err)
	}
	pathCol, labelCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "path", "image", "file":
			pathCol = i
		case "label", "class":
			labelCol = i
		}
	}
	if pathCol < 0 {
		return nil, fmt.Errorf("listing header %v has no path column", header)
	}

	var samples []Sample
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read listing line %d: %w", line, err)
		}
		s := Sample{Path: strings.TrimSpace(record[pathCol]), Label: NoLabel}
		if s.Path == "" {
			return nil, fmt.Errorf("listing line %d: empty path", line)
		}
		if labelCol >= 0 {
			s.Label, err = parseLabel(strings.TrimSpace(record[labelCol]), set)
			if err != nil {
				return nil, fmt.Errorf("listing line %d: %w", line, err)
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseLabel(value string, set *classes.Set) (int, error) {
	if value == "" {
		return NoLabel, nil
	}
	if i, ok := set.Index(value); ok {
		return i, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("unknown class %q", value)
	}
	if !set.Contains(i) {
		return 0, fmt.Errorf("label %d out of range [0, %d)", i, set.Len())
	}
	return i, nil
}

// ReadFile reads a listing from disk. Relative sample paths are resolved
// against the listing's directory.
func ReadFile(path string, set *classes.Set) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open listing: %w", err)
	}
	defer f.Close()

	samples, err := ReadCSV(f, set)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range samples {
		if !filepath.IsAbs(samples[i].Path) {
			samples[i].Path = filepath.Join(base, samples[i].Path)
		}
	}
	return samples, nil
}

// WriteCSV writes samples as path,label rows. Labels are written as class
// names; unlabeled samples get an empty label.
func WriteCSV(w io.Writer, samples []Sample, set *classes.Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"path", "label"}); err != nil {
		return err
	}
	for _, s := range samples {
		label := ""
		if s.Labeled() {
			label = set.Name(s.Label)
		}
		if err := cw.Write([]string{s.Path, label}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteFile(path string, samples []Sample, set *classes.Set) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	if err := WriteCSV(f, samples, set); err != nil {
		f.Close()
		return fmt.Errorf("write listing: %w", err)
	}
	return f.Close()
}

// Split shuffles a copy of samples with the given seed and cuts it into a
// training and a validation part.
func Split(samples []Sample, trainRatio float64, seed int64) (train, valid []Sample) {
	indices := make([]int, len(samples))
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	trainSize := int(float64(len(samples)) * trainRatio)
	train = make([]Sample, 0, trainSize)
	valid = make([]Sample, 0, len(samples)-trainSize)
	for n, idx := range indices {
		if n < trainSize {
			train = append(train, samples[idx])
		} else {
			valid = append(valid, samples[idx])
		}
	}
	return train, valid
}

// Distribution counts samples per class name. Unlabeled samples are ignored.
func Distribution(samples []Sample, set *classes.Set) map[string]int {
	dist := make(map[string]int)
	for _, s := range samples {
		if s.Labeled() {
			dist[set.Name(s.Label)]++
		}
	}
	return dist
}
