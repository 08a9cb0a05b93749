package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrCheckpoint marks a model that could not be loaded. It is always fatal:
// there is no fallback to an untrained network.
var ErrCheckpoint = errors.New("checkpoint load failed")

type Options struct {
	ModelPath    string
	MetadataPath string
	LibraryPath  string // onnxruntime shared library; empty uses the default lookup
	Device       string // "cpu" or "cuda"
	DeviceID     int
}

// Session runs an exported classifier over fixed-size batches.
type Session struct {
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

func LoadMetadata(path string) (Metadata, error) {
	var metadata Metadata
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return metadata, fmt.Errorf("%w: failed to read metadata: %w", ErrCheckpoint, err)
	}
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, fmt.Errorf("%w: failed to parse metadata: %w", ErrCheckpoint, err)
	}
	if err := metadata.Validate(); err != nil {
		return metadata, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	return metadata, nil
}

func (m Metadata) Validate() error {
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input shape %v is not [batch, channels, height, width]", m.InputShape)
	}
	if len(m.OutputShape) != 2 {
		return fmt.Errorf("output shape %v is not [batch, classes]", m.OutputShape)
	}
	for _, dim := range append(append([]int64{}, m.InputShape...), m.OutputShape...) {
		if dim <= 0 {
			return fmt.Errorf("shapes %v / %v must be fully static", m.InputShape, m.OutputShape)
		}
	}
	if m.InputShape[0] != m.OutputShape[0] {
		return fmt.Errorf("input batch %d does not match output batch %d", m.InputShape[0], m.OutputShape[0])
	}
	if len(m.Classes) != int(m.OutputShape[1]) {
		return fmt.Errorf("metadata lists %d classes, model outputs %d", len(m.Classes), m.OutputShape[1])
	}
	return nil
}

// NewSession loads the checkpoint described by opts. Metadata and the model
// file are checked before the runtime is touched.
func NewSession(opts Options) (*Session, error) {
	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	sessionOptions, err := newSessionOptions(opts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer sessionOptions.Destroy()

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		sessionOptions)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", ErrCheckpoint, err)
	}

	return &Session{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func newSessionOptions(opts Options) (*ort.SessionOptions, error) {
	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if !strings.EqualFold(opts.Device, "cuda") {
		return sessionOptions, nil
	}

	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		sessionOptions.Destroy()
		return nil, fmt.Errorf("failed to create CUDA options: %w", err)
	}
	defer cudaOptions.Destroy()
	if err := cudaOptions.Update(map[string]string{"device_id": fmt.Sprint(opts.DeviceID)}); err != nil {
		sessionOptions.Destroy()
		return nil, fmt.Errorf("failed to set CUDA device: %w", err)
	}
	if err := sessionOptions.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		sessionOptions.Destroy()
		return nil, fmt.Errorf("failed to enable CUDA: %w", err)
	}
	return sessionOptions, nil
}

// Score runs the model over n images packed back to back in data and returns
// one raw score vector per image. n may be smaller than the exported batch
// size; the unused tail of the input is zeroed.
func (s *Session) Score(ctx context.Context, data []float32, n int) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, per := s.Metadata.BatchSize(), s.Metadata.ItemSize()
	if n <= 0 || n > batch {
		return nil, fmt.Errorf("batch of %d images does not fit model batch size %d", n, batch)
	}
	if len(data) != n*per {
		return nil, fmt.Errorf("expected %d values for %d images, got %d", n*per, n, len(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	input := s.inputTensor.GetData()
	copy(input, data)
	clear(input[len(data):])

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	output := s.outputTensor.GetData()
	classes := s.Metadata.NumClasses()
	scores := make([][]float32, n)
	for i := range scores {
		scores[i] = append([]float32(nil), output[i*classes:(i+1)*classes]...)
	}
	return scores, nil
}

func (s *Session) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
