package listing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/alaska2/internal/classes"
)

// CoverDir holds the unmodified images of an ALASKA2 tree.
const CoverDir = "Cover"

// StegoDirs are the embedding algorithms of an ALASKA2 tree, one directory each.
var StegoDirs = []string{"JMiPOD", "JUNIWARD", "UERD"}

// Scan walks an ALASKA2 tree rooted at root. Cover images are labeled with
// the reference class; stego images get "<algorithm>_<quality>" where the
// quality factor is read from each file's quantization table.
func Scan(root string, set *classes.Set) ([]Sample, error) {
	coverLabel, ok := set.Index(classes.Reference)
	if !ok {
		return nil, fmt.Errorf("class set has no %q class", classes.Reference)
	}
	covers, err := globJPEG(filepath.Join(root, CoverDir))
	if err != nil {
		return nil, err
	}
	samples := make([]Sample, 0, len(covers)*(1+len(StegoDirs)))
	for _, path := range covers {
		samples = append(samples, Sample{Path: path, Label: coverLabel})
	}

	for _, alg := range StegoDirs {
		files, err := globJPEG(filepath.Join(root, alg))
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			q, err := fileQuality(path)
			if err != nil {
				return nil, err
			}
			name := fmt.Sprintf("%s_%d", alg, q)
			label, ok := set.Index(name)
			if !ok {
				return nil, fmt.Errorf("%s: no class %q for quality factor %d", path, name, q)
			}
			samples = append(samples, Sample{Path: path, Label: label})
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no images found in %s", root)
	}
	return samples, nil
}

// ScanUnlabeled lists every JPEG directly inside dir, in name order.
func ScanUnlabeled(dir string) ([]Sample, error) {
	files, err := globJPEG(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	samples := make([]Sample, len(files))
	for i, path := range files {
		samples[i] = Sample{Path: path, Label: NoLabel}
	}
	return samples, nil
}

func globJPEG(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func fileQuality(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	q, err := JPEGQuality(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}
