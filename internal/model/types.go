package model

import "fmt"

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

// BatchSize is the leading dimension the model was exported with.
func (m Metadata) BatchSize() int {
	return int(m.InputShape[0])
}

// ItemSize is the number of input values per image (C*H*W).
func (m Metadata) ItemSize() int {
	size := 1
	for _, dim := range m.InputShape[1:] {
		size *= int(dim)
	}
	return size
}

// CheckImageSize rejects a configured image size that differs from the one
// the model was exported with. Zero defers to the model.
func (m Metadata) CheckImageSize(size int) error {
	if size != 0 && size != m.ImageSize {
		return fmt.Errorf("configured image size %d does not match model image size %d", size, m.ImageSize)
	}
	return nil
}

func (m Metadata) NumClasses() int {
	return int(m.OutputShape[1])
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	ID            string             `json:"id,omitempty"`
	Class         string             `json:"class"`
	Confidence    float64            `json:"confidence"`
	Label         float64            `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
}
