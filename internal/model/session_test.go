package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validMetadata = `{
  "input_shape": [4, 3, 512, 512],
  "output_shape": [4, 10],
  "classes": ["Normal", "JMiPOD_75", "JMiPOD_90", "JMiPOD_95", "JUNIWARD_75",
              "JUNIWARD_90", "JUNIWARD_95", "UERD_75", "UERD_90", "UERD_95"],
  "image_size": 512
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMetadata(t *testing.T) {
	m, err := LoadMetadata(writeFile(t, "meta.json", validMetadata))
	require.NoError(t, err)

	assert.Equal(t, 4, m.BatchSize())
	assert.Equal(t, 3*512*512, m.ItemSize())
	assert.Equal(t, 10, m.NumClasses())
	assert.Equal(t, "input", m.InputName)
	assert.Equal(t, "output", m.OutputName)
}

func TestLoadMetadataErrors(t *testing.T) {
	tests := map[string]string{
		"not json":         `{`,
		"dynamic batch":    `{"input_shape":[-1,3,8,8],"output_shape":[-1,2],"classes":["a","b"]}`,
		"class count":      `{"input_shape":[1,3,8,8],"output_shape":[1,3],"classes":["a","b"]}`,
		"batch mismatch":   `{"input_shape":[2,3,8,8],"output_shape":[1,2],"classes":["a","b"]}`,
		"flat input shape": `{"input_shape":[1,192],"output_shape":[1,2],"classes":["a","b"]}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadMetadata(writeFile(t, "meta.json", content))
			assert.ErrorIs(t, err, ErrCheckpoint)
		})
	}

	_, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrCheckpoint)
}

func TestNewSessionMissingCheckpoint(t *testing.T) {
	_, err := NewSession(Options{
		ModelPath:    filepath.Join(t.TempDir(), "missing.onnx"),
		MetadataPath: writeFile(t, "meta.json", validMetadata),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCheckpoint)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckImageSize(t *testing.T) {
	m, err := LoadMetadata(writeFile(t, "meta.json", validMetadata))
	require.NoError(t, err)

	assert.NoError(t, m.CheckImageSize(512))
	assert.NoError(t, m.CheckImageSize(0))
	assert.ErrorContains(t, m.CheckImageSize(256), "does not match model image size 512")
}
