// Package submission writes inference results as a delimited table.
package submission

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Brownie44l1/alaska2/internal/inference"
)

// ID derives a submission identifier from an image path: its final element.
func ID(path string) string {
	return filepath.Base(filepath.ToSlash(path))
}

// Write emits one row per prediction, in table order. Binary tables have the
// columns Id,Label; multiclass tables add the predicted class and one column
// per class probability.
func Write(w io.Writer, table *inference.Table) error {
	cw := csv.NewWriter(w)

	header := []string{"Id", "Label"}
	if table.Mode == inference.Multiclass {
		header = append(header, "Class")
		header = append(header, table.Classes...)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, row := range table.Rows {
		record = record[:0]
		record = append(record, ID(row.ID), formatFloat(row.Label))
		if table.Mode == inference.Multiclass {
			if len(row.Probabilities) != len(table.Classes) {
				return fmt.Errorf("%s: %d probabilities for %d classes", row.ID, len(row.Probabilities), len(table.Classes))
			}
			record = append(record, table.Classes[row.Class()])
			for _, p := range row.Probabilities {
				record = append(record, formatFloat(p))
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table to a temporary file next to path and renames it
// into place, so path only ever holds a complete table.
func WriteFile(path string, table *inference.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, table); err != nil {
		tmp.Close()
		return fmt.Errorf("write submission: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close submission: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename submission: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
