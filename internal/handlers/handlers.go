package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/alaska2/internal/inference"
	"github.com/Brownie44l1/alaska2/internal/model"
	"github.com/Brownie44l1/alaska2/internal/transform"
)

// Cache stores responses keyed by the digest of the uploaded image.
type Cache interface {
	Get(ctx context.Context, key string) (*model.PredictionResponse, bool, error)
	Set(ctx context.Context, key string, resp *model.PredictionResponse) error
}

type Handler struct {
	scorer         inference.Scorer
	metadata       model.Metadata
	cache          Cache
	maxUploadBytes int64
	log            logrus.FieldLogger
}

// NewHandler wires the scoring endpoints. cache may be nil.
func NewHandler(scorer inference.Scorer, metadata model.Metadata, cache Cache, maxUploadBytes int64, log logrus.FieldLogger) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{
		scorer:         scorer,
		metadata:       metadata,
		cache:          cache,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"classes": h.metadata.Classes,
	})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.PredictionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, h.maxUploadBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	expectedSize := h.metadata.ItemSize()
	if len(req.Image) != expectedSize {
		http.Error(w, fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)),
			http.StatusBadRequest)
		return
	}

	result, err := h.score(r.Context(), "", req.Image)
	if err != nil {
		h.log.WithError(err).Error("prediction failed")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// preprocessImage converts an image to the CHW layout the model expects.
func (h *Handler) preprocessImage(img image.Image) ([]float32, error) {
	resized := transform.InferPipeline(h.metadata.ImageSize)(img, 0)
	data, height, width := transform.ToTensor(resized, nil)
	if len(data) != h.metadata.ItemSize() {
		return nil, fmt.Errorf("preprocessed image is %dx%d, model expects %v", width, height, h.metadata.InputShape[1:])
	}
	return data, nil
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read image", http.StatusBadRequest)
		return
	}
	entry := h.log.WithFields(logrus.Fields{"file": header.Filename, "size": len(payload)})

	sum := sha256.Sum256(payload)
	key := hex.EncodeToString(sum[:])
	if cached, ok := h.lookup(r.Context(), key); ok {
		cached.ID = header.Filename
		entry.Debug("served from cache")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return
	}
	entry = entry.WithField("format", format)

	inputData, err := h.preprocessImage(img)
	if err != nil {
		entry.WithError(err).Error("preprocessing failed")
		http.Error(w, "Failed to preprocess image", http.StatusInternalServerError)
		return
	}

	result, err := h.score(r.Context(), header.Filename, inputData)
	if err != nil {
		entry.WithError(err).Error("prediction failed")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), key, result); err != nil {
			entry.WithError(err).Warn("failed to cache prediction")
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) lookup(ctx context.Context, key string) (*model.PredictionResponse, bool) {
	if h.cache == nil {
		return nil, false
	}
	resp, ok, err := h.cache.Get(ctx, key)
	if err != nil {
		h.log.WithError(err).Warn("cache lookup failed")
		return nil, false
	}
	return resp, ok
}

func (h *Handler) score(ctx context.Context, id string, data []float32) (*model.PredictionResponse, error) {
	scores, err := h.scorer.Score(ctx, data, 1)
	if err != nil {
		return nil, err
	}
	table, err := inference.Assemble([]string{id}, scores, h.metadata.Classes, inference.Multiclass)
	if err != nil {
		return nil, err
	}
	row := table.Rows[0]
	best := row.Class()

	probabilities := make(map[string]float64, len(row.Probabilities))
	for i, p := range row.Probabilities {
		probabilities[h.metadata.Classes[i]] = p
	}
	return &model.PredictionResponse{
		ID:            id,
		Class:         h.metadata.Classes[best],
		Confidence:    row.Probabilities[best],
		Label:         row.Label,
		Probabilities: probabilities,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
