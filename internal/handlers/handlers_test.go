package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/alaska2/internal/classes"
	"github.com/Brownie44l1/alaska2/internal/logger"
	"github.com/Brownie44l1/alaska2/internal/model"
)

const testSize = 8

type fakeScorer struct {
	mu     sync.Mutex
	calls  int
	scores []float32
	err    error
}

func (f *fakeScorer) Score(ctx context.Context, data []float32, n int) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = append([]float32(nil), f.scores...)
	}
	return out, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]model.PredictionResponse
}

func (c *memCache) Get(ctx context.Context, key string) (*model.PredictionResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &resp, true, nil
}

func (c *memCache) Set(ctx context.Context, key string, resp *model.PredictionResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *resp
	return nil
}

func testMetadata() model.Metadata {
	return model.Metadata{
		InputShape:  []int64{1, 3, testSize, testSize},
		OutputShape: []int64{1, 10},
		Classes:     classes.Default().Names(),
		ImageSize:   testSize,
	}
}

// scores put most of the mass on UERD_90 (index 8).
func testScores() []float32 {
	s := make([]float32, 10)
	s[8] = 5
	return s
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, filename string, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) model.PredictionResponse {
	t.Helper()
	var resp model.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	h := NewHandler(&fakeScorer{}, testMetadata(), nil, 0, logger.Discard())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.Contains(t, rec.Body.String(), "JMiPOD_75")
}

func TestPredict(t *testing.T) {
	scorer := &fakeScorer{scores: testScores()}
	h := NewHandler(scorer, testMetadata(), nil, 0, logger.Discard())

	body, err := json.Marshal(model.PredictionRequest{Image: make([]float32, 3*testSize*testSize)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Predict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, "UERD_90", resp.Class)
	assert.InDelta(t, resp.Probabilities["UERD_90"], resp.Confidence, 1e-12)
	assert.InDelta(t, 1-resp.Probabilities["Normal"], resp.Label, 1e-12)
	assert.Len(t, resp.Probabilities, 10)
}

func TestPredictRejects(t *testing.T) {
	h := NewHandler(&fakeScorer{scores: testScores()}, testMetadata(), nil, 0, logger.Discard())

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Predict(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Predict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("{")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong size", func(t *testing.T) {
		body, _ := json.Marshal(model.PredictionRequest{Image: make([]float32, 5)})
		rec := httptest.NewRecorder()
		h.Predict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Expected 192 values, got 5")
	})
}

func TestPredictScorerError(t *testing.T) {
	h := NewHandler(&fakeScorer{err: errors.New("boom")}, testMetadata(), nil, 0, logger.Discard())

	body, _ := json.Marshal(model.PredictionRequest{Image: make([]float32, 3*testSize*testSize)})
	rec := httptest.NewRecorder()
	h.Predict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPredictFromImage(t *testing.T) {
	scorer := &fakeScorer{scores: testScores()}
	cache := &memCache{entries: map[string]model.PredictionResponse{}}
	h := NewHandler(scorer, testMetadata(), cache, 0, logger.Discard())

	// Larger than the model input so the resize path runs.
	payload := encodeJPEG(t, 32, 24)

	rec := httptest.NewRecorder()
	h.PredictFromImage(rec, uploadRequest(t, "image", "00001.jpg", payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	first := decodeResponse(t, rec)
	assert.Equal(t, "00001.jpg", first.ID)
	assert.Equal(t, "UERD_90", first.Class)
	assert.Equal(t, 1, scorer.calls)
	assert.Len(t, cache.entries, 1)

	rec = httptest.NewRecorder()
	h.PredictFromImage(rec, uploadRequest(t, "image", "copy.jpg", payload))
	require.Equal(t, http.StatusOK, rec.Code)

	second := decodeResponse(t, rec)
	assert.Equal(t, 1, scorer.calls, "identical upload should be served from cache")
	assert.Equal(t, "copy.jpg", second.ID)
	assert.Equal(t, first.Probabilities, second.Probabilities)
}

func TestPredictFromImageRejects(t *testing.T) {
	h := NewHandler(&fakeScorer{scores: testScores()}, testMetadata(), nil, 0, logger.Discard())

	t.Run("missing field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.PredictFromImage(rec, uploadRequest(t, "file", "a.jpg", encodeJPEG(t, 8, 8)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not an image", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.PredictFromImage(rec, uploadRequest(t, "image", "a.jpg", []byte("plain text")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		small := NewHandler(&fakeScorer{scores: testScores()}, testMetadata(), nil, 64, logger.Discard())
		rec := httptest.NewRecorder()
		small.PredictFromImage(rec, uploadRequest(t, "image", "a.jpg", encodeJPEG(t, 32, 32)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMiddleware(t *testing.T) {
	log := logger.Discard()
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Request-ID")))
	})

	t.Run("request id assigned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Logging(log)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		id := rec.Header().Get("X-Request-ID")
		assert.Len(t, id, 36)
		assert.Equal(t, id, rec.Body.String())
	})

	t.Run("request id kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "abc")
		rec := httptest.NewRecorder()
		Logging(log)(ok).ServeHTTP(rec, req)
		assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	})

	t.Run("recovery", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Recovery(log)(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		rec := httptest.NewRecorder()
		CORS(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/predict", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
