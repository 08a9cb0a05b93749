package transform

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	return img
}

func TestHorizontalFlip(t *testing.T) {
	src := gradient(4, 3)
	out := HorizontalFlip(1, 1)(src, 0).(*image.RGBA)

	assert.Equal(t, src.RGBAAt(3, 0), out.RGBAAt(0, 0))
	assert.Equal(t, src.RGBAAt(0, 2), out.RGBAAt(3, 2))
	// the input is left alone
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, src.RGBAAt(0, 0))
}

func TestVerticalFlip(t *testing.T) {
	src := gradient(4, 3)
	out := VerticalFlip(1, 1)(src, 0).(*image.RGBA)

	assert.Equal(t, src.RGBAAt(1, 2), out.RGBAAt(1, 0))
	assert.Equal(t, src.RGBAAt(2, 0), out.RGBAAt(2, 2))
}

func TestFlipProbabilityZero(t *testing.T) {
	src := gradient(4, 3)
	assert.Same(t, src, HorizontalFlip(0, 1)(src, 3))
	assert.Same(t, src, VerticalFlip(0, 1)(src, 3))
}

func TestTrainPipelineIsReproducible(t *testing.T) {
	src := gradient(8, 8)
	a := TrainPipeline(0, 0.5, 99)
	b := TrainPipeline(0, 0.5, 99)
	// Calls for other indices in between must not shift the draws.
	for i := 9; i >= 0; i-- {
		ta, _, _ := ToTensor(a(src, i), nil)
		a(src, i+100)
		tb, _, _ := ToTensor(b(src, i), nil)
		assert.Equal(t, ta, tb, "index %d", i)
	}
}

func TestDraw(t *testing.T) {
	assert.Equal(t, Draw(42, 7), Draw(42, 7))

	flipped := 0
	for i := 0; i < 1000; i++ {
		d := Draw(42, i)
		require.GreaterOrEqual(t, d, 0.0)
		require.Less(t, d, 1.0)
		if d < 0.5 {
			flipped++
		}
	}
	assert.InDelta(t, 500, flipped, 80)

	differ := 0
	for i := 0; i < 100; i++ {
		if Draw(1, i) != Draw(2, i) {
			differ++
		}
	}
	assert.Greater(t, differ, 90)
}

func TestFlipAxesDrawIndependently(t *testing.T) {
	h, v := HorizontalFlip(0.5, 5), VerticalFlip(0.5, 5)
	src := gradient(4, 4)
	mixed := 0
	for i := 0; i < 200; i++ {
		hFlipped := h(src, i) != image.Image(src)
		vFlipped := v(src, i) != image.Image(src)
		if hFlipped != vFlipped {
			mixed++
		}
	}
	assert.Greater(t, mixed, 50)
}

func TestResize(t *testing.T) {
	src := gradient(20, 10)
	out := Resize(8)(src, 0)
	assert.Equal(t, 8, out.Bounds().Dx())
	assert.Equal(t, 8, out.Bounds().Dy())

	assert.Same(t, src, Resize(0)(src, 0))
	square := gradient(8, 8)
	assert.Same(t, square, InferPipeline(8)(square, 0))
}

func TestToTensor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 51, 255})
	img.SetRGBA(1, 0, color.RGBA{0, 255, 0, 255})

	data, h, w := ToTensor(img, nil)
	require.Len(t, data, 6)
	assert.Equal(t, 1, h)
	assert.Equal(t, 2, w)
	// CHW layout
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, 0.0, data[1], 1e-6)
	assert.InDelta(t, 0.0, data[2], 1e-6)
	assert.InDelta(t, 1.0, data[3], 1e-6)
	assert.InDelta(t, 0.2, data[4], 1e-6)
	assert.InDelta(t, 0.0, data[5], 1e-6)

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 255})
	data, _, _ = ToTensor(gray, make([]float32, 0, 16))
	assert.Equal(t, []float32{1, 1, 1}, data)
}
